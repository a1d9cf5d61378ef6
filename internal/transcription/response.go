package transcription

import (
	"encoding/json"
	"fmt"
)

// ResponseFormat selects the output shape of a transcription response.
type ResponseFormat string

const (
	FormatText        ResponseFormat = "text"
	FormatJSON        ResponseFormat = "json"
	FormatVerboseJSON ResponseFormat = "verbose_json"
)

// ParseResponseFormat validates a requested response format. An empty value
// selects JSON.
func ParseResponseFormat(value string) (ResponseFormat, error) {
	switch value {
	case "":
		return FormatJSON, nil
	case string(FormatText), string(FormatJSON), string(FormatVerboseJSON):
		return ResponseFormat(value), nil
	default:
		return "", fmt.Errorf("response_format must be one of [text, json, verbose_json], got %q", value)
	}
}

// VerboseTranscript is the full transcript record: canonical text plus the
// ordered, time-aligned segment list.
type VerboseTranscript struct {
	Task     string    `json:"task"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Response is an assembled transcript in one of the three output shapes.
// Text is always the canonical transcript; Verbose is set only for
// verbose_json.
type Response struct {
	Format  ResponseFormat
	Text    string
	Verbose *VerboseTranscript
}

// Body renders the response payload and its content type.
func (r *Response) Body() ([]byte, string, error) {
	switch r.Format {
	case FormatText:
		return []byte(r.Text), "text/plain; charset=utf-8", nil
	case FormatJSON:
		body, err := json.Marshal(map[string]string{"text": r.Text})
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode response: %w", err)
		}
		return body, "application/json", nil
	case FormatVerboseJSON:
		body, err := json.Marshal(r.Verbose)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode response: %w", err)
		}
		return body, "application/json", nil
	default:
		return nil, "", fmt.Errorf("unknown response format %q", r.Format)
	}
}
