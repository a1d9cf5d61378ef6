package engine

import (
	"context"
)

// TokenSequence is the finalized output of one generation request: ordered
// token ids, optionally paired with per-token log-probabilities.
type TokenSequence struct {
	IDs      []int     `json:"token_ids"`
	Logprobs []float64 `json:"logprobs,omitempty"`
}

// SamplingParams bounds a single generation request.
type SamplingParams struct {
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float32 `json:"temperature"`
	SkipSpecialTokens bool    `json:"skip_special_tokens"`
	Detokenize        bool    `json:"detokenize"`
	Logprobs          bool    `json:"logprobs"`
}

// PromptDescriptor carries the encoder-side audio payload and the
// decoder-side seed token sequence for one window.
type PromptDescriptor struct {
	Audio       []float32
	SampleRate  int
	DecoderSeed []int
}

// GenerationRequest is submitted once per audio window and never retried.
type GenerationRequest struct {
	RequestID   string
	WindowIndex int
	Prompt      PromptDescriptor
	Params      SamplingParams
}

// SpecialTokens holds the decoder vocabulary markers resolved at startup.
// TimestampBegin is the id of the zero-timestamp token; every id greater or
// equal to it encodes a discrete time value in TimePrecision quanta.
type SpecialTokens struct {
	StartOfTranscript int
	Language          int
	Transcribe        int
	TimestampBegin    int
	TimePrecision     float64
}

// Tokenizer maps token ids to their symbolic form and decodes id sequences
// to text.
type Tokenizer interface {
	// IDToToken returns the symbolic string form of a single token id.
	IDToToken(id int) (string, error)

	// Decode converts an ordered id sequence to text, optionally suppressing
	// special tokens.
	Decode(ctx context.Context, ids []int, skipSpecialTokens bool) (string, error)
}

// Generator runs one generation request to completion. Implementations must
// honor context cancellation by aborting the in-flight request.
type Generator interface {
	Generate(ctx context.Context, req *GenerationRequest) (*TokenSequence, error)
}

// Engine is the full capability set the transcription pipeline requires from
// the inference backend.
type Engine interface {
	Generator

	// Tokenizer returns the engine's id/text codec.
	Tokenizer() Tokenizer

	// MaxModelLen returns the model context-length limit in tokens.
	MaxModelLen() int

	// SpecialTokens returns the decoder seed markers for the configured
	// language and task.
	SpecialTokens() SpecialTokens
}
