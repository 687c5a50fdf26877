// Package engine implements the chat gateway. The Engine implements
// transport.ChatHandler: it resolves the provider and model for a request,
// opens the provider stream, relays decoded deltas to the client as
// events (or collects them into one response), and persists a transcript
// when a store is configured.
package engine
