package transcription

import (
	"bytes"
	"compress/zlib"
	"fmt"
)

// Segment is a contiguous span of transcript text with start/end time and
// quality metrics. Segment ids are unique and strictly increasing in
// emission order across the whole transcript.
type Segment struct {
	ID               int     `json:"id"`
	Seek             int     `json:"seek"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	Tokens           []int   `json:"tokens"`
	Temperature      float32 `json:"temperature"`
	AvgLogprob       float64 `json:"avg_logprob"`
	CompressionRatio float64 `json:"compression_ratio"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
}

// SegmentParams carries every field required to materialize a segment.
type SegmentParams struct {
	ID               int
	Seek             int
	Start            float64
	End              float64
	Text             string
	Tokens           []int
	Temperature      float32
	AvgLogprob       float64
	CompressionRatio float64
	NoSpeechProb     float64
}

// NewSegment validates the parameters eagerly and fails fast on a segment
// missing its id, text, or tokens, so an incomplete segment can never reach
// the assembled transcript.
func NewSegment(p SegmentParams) (Segment, error) {
	if p.ID < 0 {
		return Segment{}, fmt.Errorf("segment id must be non-negative, got %d", p.ID)
	}

	if p.Text == "" {
		return Segment{}, fmt.Errorf("segment %d has no text", p.ID)
	}

	if len(p.Tokens) == 0 {
		return Segment{}, fmt.Errorf("segment %d has no tokens", p.ID)
	}

	if p.Start > p.End {
		return Segment{}, fmt.Errorf("segment %d start %.2f is after end %.2f", p.ID, p.Start, p.End)
	}

	return Segment{
		ID:               p.ID,
		Seek:             p.Seek,
		Start:            p.Start,
		End:              p.End,
		Text:             p.Text,
		Tokens:           p.Tokens,
		Temperature:      p.Temperature,
		AvgLogprob:       p.AvgLogprob,
		CompressionRatio: p.CompressionRatio,
		NoSpeechProb:     p.NoSpeechProb,
	}, nil
}

// compressionRatio returns the UTF-8 byte length of text divided by its
// zlib-compressed byte length. Degenerate, repetitive output compresses
// well and yields a high ratio.
func compressionRatio(text string) float64 {
	raw := []byte(text)
	if len(raw) == 0 {
		return 0
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return 0
	}
	if err := zw.Close(); err != nil {
		return 0
	}

	return float64(len(raw)) / float64(buf.Len())
}
