package chat

import (
	"bytes"
	"encoding/json"
	"strings"

	"ChatKit/models"
	"ChatKit/pkg/llm"

	"gorm.io/datatypes"
)

const (
	PartText = "text"
	PartFile = "file"

	RoleSystem = "system"
)

// Part is one element of a client message. Only text and file parts are
// persisted; every other type is transient UI state.
type Part struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

// UIMessage is a message as submitted by the client.
type UIMessage struct {
	ID    string `json:"id,omitempty"`
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// ExtractText concatenates the text parts of m in order. It feeds hook
// payloads and titles only, never storage.
func ExtractText(m UIMessage) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Serialize returns the canonical stored form of m: a JSON array of its text
// and file parts in order.
func Serialize(m UIMessage) datatypes.JSON {
	return serializeParts(m.Parts)
}

func serializeParts(parts []Part) datatypes.JSON {
	kept := make([]Part, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case PartText:
			kept = append(kept, Part{Type: PartText, Text: p.Text})
		case PartFile:
			kept = append(kept, Part{Type: PartFile, MediaType: p.MediaType, URL: p.URL, Filename: p.Filename})
		}
	}
	raw, err := json.Marshal(kept)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}

// DecodeContent parses stored content back into parts. Malformed content
// yields no parts.
func DecodeContent(raw datatypes.JSON) []Part {
	var parts []Part
	if len(raw) == 0 || json.Unmarshal(raw, &parts) != nil {
		return []Part{}
	}
	return parts
}

// sameContent reports whether a stored message holds the same canonical
// content as m. Stored bytes are re-canonicalised first because some
// databases normalise JSON columns.
func sameContent(stored models.Message, m UIMessage) bool {
	return bytes.Equal(serializeParts(DecodeContent(stored.Content)), Serialize(m))
}

// FromStored converts a persisted message to its client form.
func FromStored(m models.Message) UIMessage {
	return UIMessage{ID: m.ID, Role: m.Role, Parts: DecodeContent(m.Content)}
}

func toLLMMessage(m UIMessage) llm.Message {
	out := llm.Message{Role: m.Role, Text: ExtractText(m)}
	for _, p := range m.Parts {
		if p.Type == PartFile && p.URL != "" {
			out.Files = append(out.Files, llm.File{MediaType: p.MediaType, URL: p.URL, Filename: p.Filename})
		}
	}
	return out
}
