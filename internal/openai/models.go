package openai

import (
	"encoding/json"
	"fmt"
)

// ContentOutputText tags the content variant that carries text.
const ContentOutputText = "output_text"

// FileUploadResponse is the body returned by POST /v1/files.
type FileUploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Purpose  string `json:"purpose"`
}

// ResponseMessage is the body returned by POST /v1/responses.
type ResponseMessage struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Output []ResponseOutput `json:"output"`
}

type ResponseOutput struct {
	ID      string        `json:"id"`
	Type    string        `json:"type,omitempty"`
	Content []ContentItem `json:"content"`
}

// ContentItem is a tagged variant. Text is set only for output_text items;
// any other tag decodes with Text nil and is skipped by callers.
type ContentItem struct {
	Type string
	Text *TextSegment
}

func (c *ContentItem) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type string          `json:"type"`
		Text json.RawMessage `json:"text"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.Type = raw.Type
	c.Text = nil
	if raw.Type != ContentOutputText {
		return nil
	}
	if len(raw.Text) == 0 {
		return fmt.Errorf("%s item without text", ContentOutputText)
	}
	var seg TextSegment
	if err := json.Unmarshal(raw.Text, &seg); err != nil {
		return fmt.Errorf("decode %s text: %w", ContentOutputText, err)
	}
	c.Text = &seg
	return nil
}

func (c ContentItem) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": c.Type}
	if c.Text != nil {
		out["text"] = c.Text
	}
	return json.Marshal(out)
}

// TextSegment accepts both {"value": "..."} and a bare string.
type TextSegment struct {
	Value string `json:"value"`
}

func (t *TextSegment) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		t.Value = s
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	t.Value = obj.Value
	return nil
}

// FirstText picks the first output item and returns the text of its first
// output_text content.
func (m ResponseMessage) FirstText() (string, error) {
	if len(m.Output) == 0 {
		return "", &AnalysisError{Kind: KindNoOutput}
	}
	for _, item := range m.Output[0].Content {
		if item.Type == ContentOutputText && item.Text != nil {
			return item.Text.Value, nil
		}
	}
	return "", &AnalysisError{Kind: KindNoTextContent}
}

type responseRequest struct {
	Model string         `json:"model"`
	Input []inputMessage `json:"input"`
}

type inputMessage struct {
	Role    string         `json:"role"`
	Content []inputContent `json:"content"`
}

type inputContent struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	FileID string `json:"file_id,omitempty"`
}
