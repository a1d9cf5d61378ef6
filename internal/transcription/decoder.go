package transcription

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/skypro1111/whisper-transcribe-service/internal/engine"
)

// SegmentDecoder parses a window's output token stream into time-aligned
// segments. Token ids at or above the timestamp base are timestamp tokens;
// their occurrences alternate between segment END markers (1st, 3rd, ...)
// and the following segment's START marker (2nd, 4th, ...). A lone trailing
// timestamp preceded by text closes a final segment whose start is the
// previous segment's end.
type SegmentDecoder struct {
	tokenizer      engine.Tokenizer
	timestampBegin int
}

// NewSegmentDecoder creates a decoder bound to the engine's tokenizer and
// timestamp vocabulary.
func NewSegmentDecoder(tokenizer engine.Tokenizer, special engine.SpecialTokens) *SegmentDecoder {
	return &SegmentDecoder{
		tokenizer:      tokenizer,
		timestampBegin: special.TimestampBegin,
	}
}

// ScanParams positions one window's scan inside the whole transcript.
type ScanParams struct {
	// TimeOffset is the window's time origin in seconds, an exact multiple
	// of the window duration.
	TimeOffset float64

	// SegmentOffset is the count of segments already materialized from
	// earlier windows; emitted ids continue from it without gaps.
	SegmentOffset int

	// Temperature is echoed into every emitted segment.
	Temperature float32
}

// Scan starts a lazy, one-pass scan over the token sequence. The scan is
// finite and not restartable.
func (d *SegmentDecoder) Scan(ctx context.Context, seq *engine.TokenSequence, params ScanParams) *SegmentScan {
	s := &SegmentScan{
		decoder: d,
		ctx:     ctx,
		seq:     seq,
		params:  params,
	}

	for i, id := range seq.IDs {
		if id >= d.timestampBegin {
			s.positions = append(s.positions, i)
		}
	}

	// A sequence ending in exactly one timestamp token carries a segment
	// still open at the window boundary rather than a START for a next pair.
	n := len(seq.IDs)
	s.singleEnding = n >= 2 &&
		seq.IDs[n-1] >= d.timestampBegin &&
		seq.IDs[n-2] < d.timestampBegin

	return s
}

// SegmentScan is the one-pass iterator state over one window's tokens.
type SegmentScan struct {
	decoder *SegmentDecoder
	ctx     context.Context
	seq     *engine.TokenSequence
	params  ScanParams

	positions    []int // Timestamp token positions, in order
	singleEnding bool

	cursor    int     // Next timestamp occurrence to examine
	from      int     // Payload boundary: first candidate payload position
	lastStart float64 // Intra-window start time for the next segment
	emitted   int
	err       error
	done      bool
}

// Next returns the next segment, or false when the scan is exhausted or
// failed. Check Err after the final call.
func (s *SegmentScan) Next() (Segment, bool) {
	if s.err != nil || s.done {
		return Segment{}, false
	}

	for s.cursor < len(s.positions) {
		t := s.cursor
		pos := s.positions[t]
		s.cursor++

		value, err := s.timestampValue(s.seq.IDs[pos])
		if err != nil {
			s.err = err
			return Segment{}, false
		}

		isEnd := t%2 == 0 || (t == len(s.positions)-1 && s.singleEnding)
		if !isEnd {
			s.lastStart = value
			continue
		}

		segment, err := s.emit(pos, value)
		if err != nil {
			s.err = err
			return Segment{}, false
		}

		return segment, true
	}

	s.done = true
	return Segment{}, false
}

// Err returns the first error encountered by the scan.
func (s *SegmentScan) Err() error {
	return s.err
}

// SingleEndingTimestamp reports whether the window's stream ends on a lone
// trailing END marker, i.e. the window is still "open" at its boundary.
func (s *SegmentScan) SingleEndingTimestamp() bool {
	return s.singleEnding
}

// emit materializes the segment closed by the END marker at pos.
func (s *SegmentScan) emit(pos int, endValue float64) (Segment, error) {
	var (
		tokens     []int
		logprobSum float64
	)

	hasLogprobs := len(s.seq.Logprobs) == len(s.seq.IDs)

	for i := s.from; i < pos; i++ {
		if s.seq.IDs[i] >= s.decoder.timestampBegin {
			continue
		}
		tokens = append(tokens, s.seq.IDs[i])
		if hasLogprobs {
			logprobSum += s.seq.Logprobs[i]
		}
	}

	var text string
	if len(tokens) > 0 {
		decoded, err := s.decoder.tokenizer.Decode(s.ctx, tokens, false)
		if err != nil {
			return Segment{}, fmt.Errorf("failed to decode segment text: %w", err)
		}
		text = decoded
	}

	avgLogprob := 0.0
	if hasLogprobs && len(tokens) > 0 {
		avgLogprob = logprobSum / float64(len(tokens))
	}

	segment, err := NewSegment(SegmentParams{
		ID:               s.params.SegmentOffset + s.emitted,
		Seek:             int(s.params.TimeOffset * 100), // window origin in centiseconds
		Start:            s.params.TimeOffset + s.lastStart,
		End:              s.params.TimeOffset + endValue,
		Text:             text,
		Tokens:           tokens,
		Temperature:      s.params.Temperature,
		AvgLogprob:       avgLogprob,
		CompressionRatio: compressionRatio(text),
	})
	if err != nil {
		return Segment{}, err
	}

	s.emitted++
	s.from = pos + 1
	// Provisional start for a trailing lone END; an explicit START marker
	// overwrites it.
	s.lastStart = endValue

	return segment, nil
}

// timestampValue decodes the discrete time encoded in a timestamp token's
// symbolic form, e.g. "<|12.34|>".
func (s *SegmentScan) timestampValue(id int) (float64, error) {
	token, err := s.decoder.tokenizer.IDToToken(id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve timestamp token %d: %w", id, err)
	}

	if !strings.HasPrefix(token, "<|") || !strings.HasSuffix(token, "|>") {
		return 0, fmt.Errorf("token %d is not a timestamp marker: %q", id, token)
	}

	value, err := strconv.ParseFloat(token[2:len(token)-2], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp token %q: %w", token, err)
	}

	return value, nil
}
