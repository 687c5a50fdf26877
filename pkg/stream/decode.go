package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rhuss/chatwire/pkg/api"
)

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind uint8

const (
	// OutcomeContent carries a delta.
	OutcomeContent OutcomeKind = iota + 1
	// OutcomeError carries the remote error detail.
	OutcomeError
	// OutcomeUnknown means the payload had neither content nor error.
	OutcomeUnknown
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContent:
		return "content"
	case OutcomeError:
		return "error"
	case OutcomeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", uint8(k))
	}
}

// Outcome is the result of decoding one well-formed payload. Delta is set
// for OutcomeContent, Detail for OutcomeError.
type Outcome struct {
	Kind   OutcomeKind
	Delta  api.ChatDelta
	Detail string
}

// Err converts a non-content outcome into a *DecodeError for the given
// dialect and payload. It returns nil for OutcomeContent.
func (o Outcome) Err(dialect, payload string) error {
	switch o.Kind {
	case OutcomeContent:
		return nil
	case OutcomeError:
		return &DecodeError{
			Dialect: dialect,
			Reason:  ReasonRemote,
			Frame:   payload,
			Payload: payload,
			Message: o.Detail,
		}
	default:
		return &DecodeError{
			Dialect: dialect,
			Reason:  ReasonUnknownShape,
			Frame:   payload,
			Payload: payload,
			Message: "payload has no content and no error field",
		}
	}
}

type prefixedChunk struct {
	Choices []struct {
		Delta map[string]json.RawMessage `json:"delta"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

type rawChunk struct {
	Text  json.RawMessage `json:"text"`
	Error json.RawMessage `json:"error"`
}

func decodePrefixed(dialect, payload string) (Outcome, error) {
	var chunk prefixedChunk
	if err := unmarshalPayload(dialect, payload, &chunk); err != nil {
		return Outcome{}, err
	}

	var content, role json.RawMessage
	if len(chunk.Choices) > 0 {
		content = chunk.Choices[0].Delta["content"]
		role = chunk.Choices[0].Delta["role"]
	}
	return resolve(dialect, payload, chunk.Error, content, role)
}

func decodeRaw(dialect, payload string) (Outcome, error) {
	var chunk rawChunk
	if err := unmarshalPayload(dialect, payload, &chunk); err != nil {
		return Outcome{}, err
	}
	return resolve(dialect, payload, chunk.Error, chunk.Text, nil)
}

// unmarshalPayload requires exactly one JSON value. Several objects on one
// line are rejected rather than split.
func unmarshalPayload(dialect, payload string, v any) error {
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return &DecodeError{
			Dialect: dialect,
			Reason:  ReasonMalformed,
			Frame:   payload,
			Payload: payload,
			Message: err.Error(),
			Err:     err,
		}
	}
	return nil
}

// resolve applies the rules shared by all dialects. An error field beats
// content and missing content is an unknown shape. Roles outside
// user/assistant/system become assistant.
func resolve(dialect, payload string, errField, content, role json.RawMessage) (Outcome, error) {
	if detail, ok := errorDetail(errField); ok {
		return Outcome{Kind: OutcomeError, Detail: detail}, nil
	}

	if content == nil {
		return Outcome{Kind: OutcomeUnknown}, nil
	}

	var text string
	if !isNull(content) {
		if err := json.Unmarshal(content, &text); err != nil {
			return Outcome{}, &DecodeError{
				Dialect: dialect,
				Reason:  ReasonMalformed,
				Frame:   payload,
				Payload: payload,
				Message: "content is not a string",
				Err:     err,
			}
		}
	}

	delta := api.ChatDelta{Role: api.RoleAssistant, Content: text}
	if role != nil && !isNull(role) {
		var r string
		if err := json.Unmarshal(role, &r); err == nil && api.Role(r).Valid() {
			delta.Role = api.Role(r)
		}
	}
	return Outcome{Kind: OutcomeContent, Delta: delta}, nil
}

// errorDetail extracts a message from an error field. Absent, null, false
// and empty-string values do not count as an error.
func errorDetail(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) || bytes.Equal(raw, []byte("false")) || bytes.Equal(raw, []byte(`""`)) {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	var obj struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != nil {
		return *obj.Message, true
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw), true
	}
	return compact.String(), true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
