package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/coursepipe/coursepipe/internal/model"
)

// ErrNotMyFormat signals that a decoder does not recognize the input
// and the next decoder in the chain should be tried.
var ErrNotMyFormat = errors.New("not my format")

// Four accepted conversation shapes, tried in order.
type convMessage struct {
	Role    string          `json:"role"`
	Speaker string          `json:"speaker"`
	Content json.RawMessage `json:"content"`
}

type dojoSession struct {
	Construct string `json:"construct"`
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
}

type dojoExport struct {
	Messages []convMessage `json:"messages"`
	Session  *dojoSession  `json:"session"`
	Version  string        `json:"version"`
}

type wrappedConversation struct {
	Conversation []convMessage `json:"conversation"`
}

type turnsExport struct {
	Turns             []convMessage `json:"turns"`
	ConversationTitle string        `json:"conversation_title"`
	KeyTakeaways      []string      `json:"key_takeaways"`
	Context           string        `json:"context"`
}

// textOf renders a message content that may be a string or a nested
// object; non-strings are stringified verbatim.
func (m convMessage) textOf() string {
	if len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	return string(m.Content)
}

func (m convMessage) roleOf() string {
	if m.Role != "" {
		return m.Role
	}
	return m.Speaker
}

// ExtractConversation classifies raw JSON as one of the four accepted
// conversation shapes and renders a normalized transcript. Returns
// ErrNotMyFormat when the bytes are not a recognizable conversation.
func ExtractConversation(data []byte) (model.Payload, error) {
	// Bare array of {role, content}.
	var bare []convMessage
	if err := json.Unmarshal(data, &bare); err == nil {
		return transcriptPayload(bare, "bare-array")
	}

	var dojo dojoExport
	if err := json.Unmarshal(data, &dojo); err == nil && len(dojo.Messages) > 0 && dojo.Session != nil {
		p, err := transcriptPayload(dojo.Messages, "dojo")
		if err == nil {
			p.Conversation.Construct = dojo.Session.Construct
			p.Conversation.SessionName = dojo.Session.Name
			p.Conversation.StartedAt = dojo.Session.StartTime
		}
		return p, err
	}

	var wrapped wrappedConversation
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Conversation) > 0 {
		return transcriptPayload(wrapped.Conversation, "wrapped")
	}

	var turns turnsExport
	if err := json.Unmarshal(data, &turns); err == nil && len(turns.Turns) > 0 {
		p, err := transcriptPayload(turns.Turns, "turns")
		if err == nil {
			p.Conversation.Title = turns.ConversationTitle
			p.Conversation.KeyTakeaways = turns.KeyTakeaways
			p.Conversation.Context = turns.Context
		}
		return p, err
	}

	return model.Payload{}, ErrNotMyFormat
}

// transcriptPayload renders messages as a readable transcript with
// [Student]/[AI] prefixes separated by blank lines. Turns shorter than
// two characters are dropped.
func transcriptPayload(msgs []convMessage, format string) (model.Payload, error) {
	var parts []string
	meta := model.ConversationMeta{Format: format}

	for _, m := range msgs {
		text := strings.TrimSpace(m.textOf())
		if len(text) < 2 {
			continue
		}
		meta.TotalTurns++
		prefix := "[AI]"
		switch strings.ToLower(m.roleOf()) {
		case "user", "student", "human":
			prefix = "[Student]"
			meta.UserTurns++
			meta.UserWords += wordCount(text)
		}
		parts = append(parts, fmt.Sprintf("%s %s", prefix, text))
	}

	if len(parts) == 0 {
		return model.Payload{}, ErrNotMyFormat
	}

	transcript := Truncate(strings.Join(parts, "\n\n"), model.MaxContentLen(model.ContentConversation))
	return model.Payload{
		Type:         model.ContentConversation,
		Content:      transcript,
		Conversation: &meta,
	}, nil
}
