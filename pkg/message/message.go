// Package message converts caller-facing chat messages into the shape
// vendor chat endpoints accept. Every function is pure and total: bad image
// references degrade to empty strings rather than failing.
package message

import (
	"strings"

	"github.com/rhuss/chatwire/pkg/api"
)

// WireMessage is a chat message in vendor wire form. Mixed content is
// flattened to text with images carried alongside as bare payloads.
type WireMessage struct {
	Role    api.Role `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// FromPrompt wraps a bare prompt as a single user message.
func FromPrompt(prompt string) []api.ChatMessage {
	return []api.ChatMessage{{Role: api.RoleUser, Content: api.TextContent(prompt)}}
}

// ToWire converts one message. Plain text passes through; mixed content
// becomes the concatenation of its text parts plus, for every image part in
// order, the text after the last "," of its URL.
func ToWire(m api.ChatMessage) WireMessage {
	if m.Content.IsText() {
		return WireMessage{Role: m.Role, Content: m.Content.Text}
	}

	w := WireMessage{Role: m.Role, Content: StripImages(m.Content)}
	for _, part := range m.Content.Parts {
		if part.Type != api.ContentTypeImageURL {
			continue
		}
		var url string
		if part.ImageURL != nil {
			url = part.ImageURL.URL
		}
		w.Images = append(w.Images, ImagePayload(url))
	}
	return w
}

// ToWireAll converts messages in order.
func ToWireAll(msgs []api.ChatMessage) []WireMessage {
	out := make([]WireMessage, len(msgs))
	for i, m := range msgs {
		out[i] = ToWire(m)
	}
	return out
}

// ImagePayload returns the part of an image reference after its last ",",
// which for a data URI is the base64 payload. A reference without "," has
// no payload and yields "".
func ImagePayload(ref string) string {
	i := strings.LastIndexByte(ref, ',')
	if i < 0 {
		return ""
	}
	return ref[i+1:]
}

// StripImages returns the text of c with image parts discarded. Text parts
// are concatenated without separators.
func StripImages(c api.Content) string {
	if c.IsText() {
		return c.Text
	}
	var b strings.Builder
	for _, part := range c.Parts {
		if part.Type == api.ContentTypeText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// Text returns the text-only view of a message.
func Text(m api.ChatMessage) string {
	return StripImages(m.Content)
}
