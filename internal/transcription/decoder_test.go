package transcription

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/skypro1111/whisper-transcribe-service/internal/engine"
)

const testTimestampBegin = 50365

// fakeTokenizer resolves a tiny fixed vocabulary and synthesizes timestamp
// tokens the way the whisper vocabulary lays them out.
type fakeTokenizer struct {
	vocab map[int]string
}

func newFakeTokenizer() *fakeTokenizer {
	return &fakeTokenizer{vocab: map[int]string{
		1: "Hello",
		2: " world",
		3: " again",
		4: " and",
		5: " more",
	}}
}

func (f *fakeTokenizer) IDToToken(id int) (string, error) {
	if id >= testTimestampBegin {
		return fmt.Sprintf("<|%.2f|>", float64(id-testTimestampBegin)*0.02), nil
	}
	token, ok := f.vocab[id]
	if !ok {
		return "", fmt.Errorf("unknown token id %d", id)
	}
	return token, nil
}

func (f *fakeTokenizer) Decode(ctx context.Context, ids []int, skipSpecialTokens bool) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id >= testTimestampBegin {
			if skipSpecialTokens {
				continue
			}
			token, _ := f.IDToToken(id)
			sb.WriteString(token)
			continue
		}
		token, ok := f.vocab[id]
		if !ok {
			return "", fmt.Errorf("unknown token id %d", id)
		}
		sb.WriteString(token)
	}
	return sb.String(), nil
}

// ts returns the timestamp token id encoding the given time.
func ts(seconds float64) int {
	return testTimestampBegin + int(seconds/0.02+0.5)
}

func fakeSpecialTokens() engine.SpecialTokens {
	return engine.SpecialTokens{
		StartOfTranscript: 50258,
		Language:          50259,
		Transcribe:        50360,
		TimestampBegin:    testTimestampBegin,
		TimePrecision:     0.02,
	}
}

func collectSegments(t *testing.T, scan *SegmentScan) []Segment {
	t.Helper()

	var segments []Segment
	for {
		segment, ok := scan.Next()
		if !ok {
			break
		}
		segments = append(segments, segment)
	}
	if err := scan.Err(); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return segments
}

func TestScanTwoSegmentsWithTrailingEnd(t *testing.T) {
	decoder := NewSegmentDecoder(newFakeTokenizer(), fakeSpecialTokens())

	seq := &engine.TokenSequence{IDs: []int{1, 2, ts(1.0), 3, ts(2.0)}}
	scan := decoder.Scan(context.Background(), seq, ScanParams{})
	segments := collectSegments(t, scan)

	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segments))
	}

	first := segments[0]
	if first.ID != 0 || first.Start != 0.0 || first.End != 1.0 {
		t.Errorf("Unexpected first segment bounds: %+v", first)
	}
	if first.Text != "Hello world" {
		t.Errorf("Expected first text 'Hello world', got %q", first.Text)
	}
	if len(first.Tokens) != 2 || first.Tokens[0] != 1 || first.Tokens[1] != 2 {
		t.Errorf("Unexpected first segment tokens: %v", first.Tokens)
	}

	second := segments[1]
	if second.ID != 1 || second.Start != 1.0 || second.End != 2.0 {
		t.Errorf("Unexpected second segment bounds: %+v", second)
	}
	if second.Text != " again" {
		t.Errorf("Expected second text ' again', got %q", second.Text)
	}

	if !scan.SingleEndingTimestamp() {
		t.Error("Expected single-ending-timestamp flag for a lone trailing END")
	}
}

func TestScanNoTimestampsYieldsNoSegments(t *testing.T) {
	decoder := NewSegmentDecoder(newFakeTokenizer(), fakeSpecialTokens())

	seq := &engine.TokenSequence{IDs: []int{1, 2, 3}}
	scan := decoder.Scan(context.Background(), seq, ScanParams{})
	segments := collectSegments(t, scan)

	if len(segments) != 0 {
		t.Fatalf("Expected 0 segments, got %d", len(segments))
	}
	if scan.SingleEndingTimestamp() {
		t.Error("Unexpected single-ending-timestamp flag")
	}
}

func TestScanPairedStartMarkers(t *testing.T) {
	decoder := NewSegmentDecoder(newFakeTokenizer(), fakeSpecialTokens())

	seq := &engine.TokenSequence{IDs: []int{1, 2, ts(1.0), ts(1.2), 3, ts(2.0)}}
	scan := decoder.Scan(context.Background(), seq, ScanParams{})
	segments := collectSegments(t, scan)

	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segments))
	}

	if segments[0].Start != 0.0 || segments[0].End != 1.0 {
		t.Errorf("Unexpected first segment bounds: %+v", segments[0])
	}

	// The explicit START marker positions the second segment.
	if segments[1].Start != 1.2 || segments[1].End != 2.0 {
		t.Errorf("Unexpected second segment bounds: %+v", segments[1])
	}
	if segments[1].Text != " again" {
		t.Errorf("Expected second text ' again', got %q", segments[1].Text)
	}
}

func TestScanEndingOnStartMarker(t *testing.T) {
	decoder := NewSegmentDecoder(newFakeTokenizer(), fakeSpecialTokens())

	seq := &engine.TokenSequence{IDs: []int{1, ts(1.0), ts(1.2), 2, ts(2.0), ts(2.4)}}
	scan := decoder.Scan(context.Background(), seq, ScanParams{})
	segments := collectSegments(t, scan)

	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segments))
	}
	if segments[1].Start != 1.2 || segments[1].End != 2.0 {
		t.Errorf("Unexpected second segment bounds: %+v", segments[1])
	}
	if scan.SingleEndingTimestamp() {
		t.Error("A doubled trailing timestamp is not a lone END")
	}
}

func TestScanAppliesWindowOffsets(t *testing.T) {
	decoder := NewSegmentDecoder(newFakeTokenizer(), fakeSpecialTokens())

	seq := &engine.TokenSequence{IDs: []int{1, 2, ts(1.0), 3, ts(2.0)}}
	scan := decoder.Scan(context.Background(), seq, ScanParams{
		TimeOffset:    30.0,
		SegmentOffset: 5,
		Temperature:   0.2,
	})
	segments := collectSegments(t, scan)

	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segments))
	}

	if segments[0].ID != 5 || segments[1].ID != 6 {
		t.Errorf("Expected ids 5 and 6, got %d and %d", segments[0].ID, segments[1].ID)
	}
	if segments[0].Start != 30.0 || segments[0].End != 31.0 {
		t.Errorf("Unexpected first segment bounds: %+v", segments[0])
	}
	if segments[1].Start != 31.0 || segments[1].End != 32.0 {
		t.Errorf("Unexpected second segment bounds: %+v", segments[1])
	}
	if segments[0].Seek != 3000 {
		t.Errorf("Expected seek 3000, got %d", segments[0].Seek)
	}
	if segments[0].Temperature != 0.2 {
		t.Errorf("Expected temperature 0.2, got %f", segments[0].Temperature)
	}
}

func TestScanAverageLogprob(t *testing.T) {
	decoder := NewSegmentDecoder(newFakeTokenizer(), fakeSpecialTokens())

	seq := &engine.TokenSequence{
		IDs:      []int{1, 2, ts(1.0)},
		Logprobs: []float64{-0.5, -0.7, -0.01},
	}
	scan := decoder.Scan(context.Background(), seq, ScanParams{})
	segments := collectSegments(t, scan)

	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segments))
	}

	// Only the payload tokens contribute, not the timestamp marker.
	if math.Abs(segments[0].AvgLogprob-(-0.6)) > 1e-9 {
		t.Errorf("Expected avg_logprob -0.6, got %f", segments[0].AvgLogprob)
	}
}

func TestScanIsOnePass(t *testing.T) {
	decoder := NewSegmentDecoder(newFakeTokenizer(), fakeSpecialTokens())

	seq := &engine.TokenSequence{IDs: []int{1, ts(1.0)}}
	scan := decoder.Scan(context.Background(), seq, ScanParams{})

	if _, ok := scan.Next(); !ok {
		t.Fatal("Expected one segment")
	}
	if _, ok := scan.Next(); ok {
		t.Fatal("Expected scan to be exhausted")
	}
	if _, ok := scan.Next(); ok {
		t.Fatal("Exhausted scan must not restart")
	}
}

func TestScanRejectsEmptySegmentPayload(t *testing.T) {
	decoder := NewSegmentDecoder(newFakeTokenizer(), fakeSpecialTokens())

	// An END marker with no text tokens before it cannot build a valid
	// segment.
	seq := &engine.TokenSequence{IDs: []int{ts(1.0), 1, ts(2.0)}}
	scan := decoder.Scan(context.Background(), seq, ScanParams{})

	for {
		if _, ok := scan.Next(); !ok {
			break
		}
	}
	if scan.Err() == nil {
		t.Error("Expected validation error for empty segment payload")
	}
}

func TestCompressionRatioIsPure(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog."

	first := compressionRatio(text)
	second := compressionRatio(text)
	if first != second {
		t.Errorf("compressionRatio is not deterministic: %f vs %f", first, second)
	}
	if first <= 0 {
		t.Errorf("Expected positive ratio, got %f", first)
	}

	repetitive := strings.Repeat("ha", 500)
	if compressionRatio(repetitive) <= compressionRatio(text) {
		t.Error("Repetitive text should compress better than plausible text")
	}

	if compressionRatio("") != 0 {
		t.Error("Empty text should have zero ratio")
	}
}
