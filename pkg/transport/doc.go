// Package transport defines the handler interfaces and middleware chain
// between HTTP clients and the chatwire engine.
//
// ChatHandler is the core contract: it receives a gateway request and
// writes either streaming events or one complete response to a
// ResponseWriter, without knowing how they reach the client.
// TranscriptStore is the optional persistence contract, and
// ProviderCatalog lists the providers a deployment routes to.
//
// Middleware wraps a ChatHandler with cross-cutting concerns. The built-in
// set provides panic recovery, request ID assignment and structured
// logging via log/slog. The HTTP binding lives in the http subpackage.
package transport
