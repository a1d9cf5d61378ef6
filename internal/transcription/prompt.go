package transcription

import (
	"github.com/skypro1111/whisper-transcribe-service/internal/audio"
	"github.com/skypro1111/whisper-transcribe-service/internal/engine"
)

// decoderSeedLength is the fixed number of decoder seed tokens in every
// prompt: start-of-transcript, language, task, initial timestamp.
const decoderSeedLength = 4

// PromptBuilder constructs per-window inference prompts. Pure: it never
// talks to the engine.
type PromptBuilder struct {
	special engine.SpecialTokens
}

// NewPromptBuilder creates a prompt builder for the engine's resolved
// decoder markers.
func NewPromptBuilder(special engine.SpecialTokens) *PromptBuilder {
	return &PromptBuilder{special: special}
}

// Build produces the prompt descriptor for one window: the raw window
// waveform on the encoder side and the fixed decoder seed sequence.
// The initial timestamp marker is always the zero-timestamp token; seeding
// the window's actual time origin is reserved for verbose output once the
// engine accepts arbitrary initial timestamps.
func (b *PromptBuilder) Build(window audio.Window, sampleRate int, verbose bool) engine.PromptDescriptor {
	return engine.PromptDescriptor{
		Audio:      window.Samples,
		SampleRate: sampleRate,
		DecoderSeed: []int{
			b.special.StartOfTranscript,
			b.special.Language,
			b.special.Transcribe,
			b.special.TimestampBegin,
		},
	}
}
