package transcription

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/skypro1111/whisper-transcribe-service/internal/engine"
)

func TestAssembleCanonicalText(t *testing.T) {
	assembler := NewAssembler(newFakeTokenizer())

	// Two windows' full token streams, timestamp markers included. The
	// transcript comes from a single decode of the concatenation, not from
	// joining per-segment texts.
	sequences := []*engine.TokenSequence{
		{IDs: []int{1, 2, ts(1.0)}},
		{IDs: []int{3, 4, ts(2.0)}},
	}

	response, err := assembler.Assemble(context.Background(), sequences, nil,
		FormatJSON, 60.0, "en")
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if response.Text != "Hello world again and" {
		t.Errorf("Unexpected transcript text: %q", response.Text)
	}
	if response.Verbose != nil {
		t.Error("JSON format should not carry a verbose transcript")
	}
}

func TestAssembleVerbose(t *testing.T) {
	assembler := NewAssembler(newFakeTokenizer())

	sequences := []*engine.TokenSequence{{IDs: []int{1, 2, ts(1.0)}}}
	segments := []Segment{{
		ID:     0,
		Start:  0.0,
		End:    1.0,
		Text:   "Hello world",
		Tokens: []int{1, 2},
	}}

	response, err := assembler.Assemble(context.Background(), sequences, segments,
		FormatVerboseJSON, 30.0, "en")
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	verbose := response.Verbose
	if verbose == nil {
		t.Fatal("Expected verbose transcript")
	}
	if verbose.Task != "transcribe" || verbose.Language != "en" {
		t.Errorf("Unexpected task/language: %q/%q", verbose.Task, verbose.Language)
	}
	if verbose.Duration != 30.0 {
		t.Errorf("Expected duration 30.0, got %f", verbose.Duration)
	}
	if len(verbose.Segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(verbose.Segments))
	}
}

func TestAssembleVerboseWithoutSegments(t *testing.T) {
	assembler := NewAssembler(newFakeTokenizer())

	response, err := assembler.Assemble(context.Background(),
		[]*engine.TokenSequence{{IDs: []int{1}}}, nil,
		FormatVerboseJSON, 30.0, "en")
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	body, _, err := response.Body()
	if err != nil {
		t.Fatalf("Body failed: %v", err)
	}

	// segments must serialize as an empty array, never null.
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("Invalid JSON body: %v", err)
	}
	if string(decoded["segments"]) != "[]" {
		t.Errorf("Expected empty segments array, got %s", decoded["segments"])
	}
}

func TestResponseBodyShapes(t *testing.T) {
	textResponse := &Response{Format: FormatText, Text: "hello"}
	body, contentType, err := textResponse.Body()
	if err != nil {
		t.Fatalf("Body failed: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("Unexpected text body: %q", body)
	}
	if contentType != "text/plain; charset=utf-8" {
		t.Errorf("Unexpected content type: %q", contentType)
	}

	jsonResponse := &Response{Format: FormatJSON, Text: "hello"}
	body, contentType, err = jsonResponse.Body()
	if err != nil {
		t.Fatalf("Body failed: %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("Unexpected content type: %q", contentType)
	}
	var decoded map[string]string
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("Invalid JSON body: %v", err)
	}
	if decoded["text"] != "hello" {
		t.Errorf("Unexpected JSON body: %s", body)
	}
}

func TestParseResponseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    ResponseFormat
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"text", FormatText, false},
		{"verbose_json", FormatVerboseJSON, false},
		{"srt", "", true},
		{"JSON", "", true},
	}

	for _, tt := range tests {
		format, err := ParseResponseFormat(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseResponseFormat(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseResponseFormat(%q) failed: %v", tt.input, err)
			continue
		}
		if format != tt.want {
			t.Errorf("ParseResponseFormat(%q) = %q, want %q", tt.input, format, tt.want)
		}
	}
}
