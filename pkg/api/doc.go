// Package api defines the caller-facing protocol types for chatwire.
//
// It provides the conversation shapes callers hand to providers (ChatMessage
// with text or mixed text/image content), the incremental output unit
// produced while a model generates (ChatDelta), the gateway request and
// response bodies, transcript IDs, validation, and the structured error type
// shared by every layer.
//
// The package performs no I/O. JSON produced here is what the gateway
// accepts and returns on the wire.
//
// Core types:
//   - [ChatMessage]: role-tagged message whose content is text or ordered parts
//   - [ChatDelta]: one partial piece of an assistant message
//   - [ChatRequest]: gateway request (messages or a single prompt)
//   - [ChatResponse]: non-streaming gateway response
//   - [APIError]: structured error with type, code, param, and message
package api
