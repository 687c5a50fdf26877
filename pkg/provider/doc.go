// Package provider defines the interface chatwire uses to reach vendor
// chat endpoints. Each adapter (aifm, nemo) translates a Request into its
// vendor's wire format and returns a stream.Stream over the response, so
// callers never see vendor framing or payload shapes.
package provider
