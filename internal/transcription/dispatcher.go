package transcription

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/whisper-transcribe-service/internal/engine"
)

// Dispatcher fans one generation call per window out to the engine and fans
// all results back in, restored to window order.
type Dispatcher struct {
	generator engine.Generator
}

// NewDispatcher creates a dispatcher over the given generator.
func NewDispatcher(generator engine.Generator) *Dispatcher {
	return &Dispatcher{generator: generator}
}

// Dispatch submits every request without waiting for any to complete, then
// joins the whole group. Results are keyed by window index, never by
// completion order. The first failure cancels every sibling in-flight
// request and fails the whole dispatch; a truncated result set is never
// returned.
func (d *Dispatcher) Dispatch(ctx context.Context, requests []*engine.GenerationRequest) ([]*engine.TokenSequence, error) {
	results := make([]*engine.TokenSequence, len(requests))

	group, ctx := errgroup.WithContext(ctx)
	for _, req := range requests {
		req := req
		group.Go(func() error {
			seq, err := d.generator.Generate(ctx, req)
			if err != nil {
				return fmt.Errorf("window %d generation failed: %w", req.WindowIndex, err)
			}

			results[req.WindowIndex] = seq
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
