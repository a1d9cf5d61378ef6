package transcription

import (
	"context"
	"fmt"
	"strings"

	"github.com/skypro1111/whisper-transcribe-service/internal/engine"
)

// Assembler merges all windows' token streams and segments into the final
// response.
type Assembler struct {
	tokenizer engine.Tokenizer
}

// NewAssembler creates an assembler over the engine's tokenizer.
func NewAssembler(tokenizer engine.Tokenizer) *Assembler {
	return &Assembler{tokenizer: tokenizer}
}

// Assemble concatenates every window's full token stream in window order and
// decodes it once with special tokens suppressed; that single decode is the
// canonical transcript text, authoritative over any concatenation of
// per-segment texts. Segments arrive already merged and globally numbered.
func (a *Assembler) Assemble(
	ctx context.Context,
	sequences []*engine.TokenSequence,
	segments []Segment,
	format ResponseFormat,
	duration float64,
	language string,
) (*Response, error) {
	var all []int
	for _, seq := range sequences {
		all = append(all, seq.IDs...)
	}

	var text string
	if len(all) > 0 {
		decoded, err := a.tokenizer.Decode(ctx, all, true)
		if err != nil {
			return nil, fmt.Errorf("failed to decode transcript text: %w", err)
		}
		text = strings.TrimSpace(decoded)
	}

	response := &Response{
		Format: format,
		Text:   text,
	}

	if format == FormatVerboseJSON {
		if segments == nil {
			segments = []Segment{}
		}
		response.Verbose = &VerboseTranscript{
			Task:     "transcribe",
			Language: language,
			Duration: duration,
			Text:     text,
			Segments: segments,
		}
	}

	return response, nil
}
