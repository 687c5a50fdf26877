package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const chatIDPrefix = "chat_"

var chatIDPattern = regexp.MustCompile(`^chat_[a-f0-9]{32}$`)

// NewChatID generates a new chat ID with the "chat_" prefix followed by the
// 32 hex digits of a random UUID. The same ID names the gateway response
// and its stored transcript.
func NewChatID() string {
	return chatIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateChatID checks whether the given string is a valid chat ID.
func ValidateChatID(id string) bool {
	return chatIDPattern.MatchString(id)
}
