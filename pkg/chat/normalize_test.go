package chat

import (
	"strings"
	"testing"

	"ChatKit/models"
)

func TestExtractText(t *testing.T) {
	m := UIMessage{Role: "user", Parts: []Part{
		{Type: PartText, Text: "Hello, "},
		{Type: PartFile, URL: "https://x/y.png"},
		{Type: "reasoning", Text: "ignored"},
		{Type: PartText, Text: "world"},
	}}
	if got := ExtractText(m); got != "Hello, world" {
		t.Fatalf("ExtractText = %q", got)
	}
	if got := ExtractText(UIMessage{Role: "user"}); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}

func TestSerializeKeepsTextAndFileInOrder(t *testing.T) {
	m := UIMessage{Role: "user", Parts: []Part{
		{Type: "step-start"},
		{Type: PartFile, MediaType: "image/png", URL: "https://x/y.png", Filename: "y.png"},
		{Type: "tool-navigate", Text: "transient"},
		{Type: PartText, Text: "what is this?"},
	}}
	got := string(Serialize(m))
	want := `[{"type":"file","mediaType":"image/png","url":"https://x/y.png","filename":"y.png"},{"type":"text","text":"what is this?"}]`
	if got != want {
		t.Fatalf("Serialize =\n%s\nwant\n%s", got, want)
	}
}

func TestSerializeEmpty(t *testing.T) {
	got := Serialize(UIMessage{Role: "assistant", Parts: []Part{{Type: "reasoning", Text: "x"}}})
	if string(got) != "[]" {
		t.Fatalf("Serialize = %s, want []", got)
	}
}

func TestSerializeIsDeterministic(t *testing.T) {
	m := textMsg("user", "same")
	if string(Serialize(m)) != string(Serialize(m)) {
		t.Fatalf("Serialize is not deterministic")
	}
}

func TestFromStoredToleratesBadContent(t *testing.T) {
	m := FromStored(models.Message{ID: "1", Role: "user", Content: []byte("not json")})
	if len(m.Parts) != 0 {
		t.Fatalf("expected no parts, got %+v", m.Parts)
	}
}

func TestToLLMMessageCarriesFiles(t *testing.T) {
	m := UIMessage{Role: "user", Parts: []Part{
		{Type: PartText, Text: "look"},
		{Type: PartFile, MediaType: "image/png", URL: "https://x/a.png"},
		{Type: PartFile, MediaType: "image/png"},
	}}
	got := toLLMMessage(m)
	if got.Text != "look" || len(got.Files) != 1 || !strings.HasSuffix(got.Files[0].URL, "a.png") {
		t.Fatalf("unexpected llm message %+v", got)
	}
}
