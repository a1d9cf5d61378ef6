package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skypro1111/whisper-transcribe-service/internal/audio"
	"github.com/skypro1111/whisper-transcribe-service/internal/engine"
)

// ErrInvalidAudio marks request failures caused by undecodable or unusable
// audio input, as opposed to engine failures.
var ErrInvalidAudio = errors.New("invalid audio input")

// TranscriberConfig contains the pipeline parameters.
type TranscriberConfig struct {
	WindowSeconds int    // Maximum window duration in seconds
	SampleRate    int    // Expected audio sample rate in Hz
	Language      string // Transcript language code, e.g. "en"
}

// Transcriber drives a full transcription request: decode, chunk, dispatch,
// segment, assemble. One Transcriber serves many concurrent requests; all
// per-request state lives on the stack of Transcribe.
type Transcriber struct {
	config     TranscriberConfig
	engine     engine.Engine
	chunker    *audio.Chunker
	prompts    *PromptBuilder
	dispatcher *Dispatcher
	decoder    *SegmentDecoder
	assembler  *Assembler
	logger     *slog.Logger
}

// RequestOptions carries the per-request knobs.
type RequestOptions struct {
	RequestID   string
	Temperature float32
	Format      ResponseFormat
}

// Result is an assembled transcript plus bookkeeping for logging and
// metrics.
type Result struct {
	Response      *Response
	Windows       int
	SegmentCount  int
	AudioDuration float64
}

// NewTranscriber creates the transcription pipeline over an inference
// engine.
func NewTranscriber(logger *slog.Logger, config TranscriberConfig, eng engine.Engine) (*Transcriber, error) {
	chunker, err := audio.NewChunker(audio.ChunkerConfig{
		WindowSeconds: config.WindowSeconds,
		SampleRate:    config.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	special := eng.SpecialTokens()

	return &Transcriber{
		config:     config,
		engine:     eng,
		chunker:    chunker,
		prompts:    NewPromptBuilder(special),
		dispatcher: NewDispatcher(eng),
		decoder:    NewSegmentDecoder(eng.Tokenizer(), special),
		assembler:  NewAssembler(eng.Tokenizer()),
		logger:     logger,
	}, nil
}

// Transcribe runs one request end to end. A failure on any window fails the
// whole request; no partial transcript is ever returned. Cancelling ctx
// aborts every in-flight engine call.
func (t *Transcriber) Transcribe(ctx context.Context, data []byte, opts RequestOptions) (*Result, error) {
	logger := t.logger.With(slog.String("request_id", opts.RequestID))

	waveform, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAudio, err)
	}

	windows, err := t.chunker.Chunk(waveform)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAudio, err)
	}

	logger.Debug("Audio decoded",
		slog.Int("samples", len(waveform.Samples)),
		slog.Float64("duration_seconds", waveform.Duration()),
		slog.Int("windows", len(windows)),
	)

	verbose := opts.Format == FormatVerboseJSON
	maxTokens := t.engine.MaxModelLen() - decoderSeedLength

	requests := make([]*engine.GenerationRequest, len(windows))
	for i, window := range windows {
		requests[i] = &engine.GenerationRequest{
			RequestID:   fmt.Sprintf("%s-%d", opts.RequestID, window.Index),
			WindowIndex: window.Index,
			Prompt:      t.prompts.Build(window, t.config.SampleRate, verbose),
			Params: engine.SamplingParams{
				MaxTokens:         maxTokens,
				Temperature:       opts.Temperature,
				SkipSpecialTokens: false,
				Detokenize:        false,
				Logprobs:          verbose,
			},
		}
	}

	sequences, err := t.dispatcher.Dispatch(ctx, requests)
	if err != nil {
		return nil, err
	}

	var segments []Segment
	for i, seq := range sequences {
		scan := t.decoder.Scan(ctx, seq, ScanParams{
			TimeOffset:    windows[i].TimeOffset,
			SegmentOffset: len(segments),
			Temperature:   opts.Temperature,
		})

		for {
			segment, ok := scan.Next()
			if !ok {
				break
			}
			segments = append(segments, segment)
		}

		if err := scan.Err(); err != nil {
			return nil, fmt.Errorf("window %d segment decoding failed: %w", i, err)
		}
	}

	response, err := t.assembler.Assemble(ctx, sequences, segments, opts.Format,
		waveform.Duration(), t.config.Language)
	if err != nil {
		return nil, err
	}

	logger.Info("Transcript assembled",
		slog.Int("windows", len(windows)),
		slog.Int("segments", len(segments)),
		slog.Float64("audio_duration_seconds", waveform.Duration()),
		slog.String("format", string(opts.Format)),
	)

	return &Result{
		Response:      response,
		Windows:       len(windows),
		SegmentCount:  len(segments),
		AudioDuration: waveform.Duration(),
	}, nil
}
