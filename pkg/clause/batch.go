package clause

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RenderBatch renders tmpl once per context in parallel, bounded by the
// engine's RenderConcurrency. Results keep the order of contexts. The first
// failure cancels the remaining renders and is returned as a *BatchError.
func (e *Engine) RenderBatch(ctx context.Context, tmpl *Template, contexts []RenderContext) ([]string, error) {
	results := make([]string, len(contexts))

	limit := e.settings().RenderConcurrency
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range contexts {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &BatchError{Index: i, Cause: RecoverError(r)}
				}
			}()

			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := e.Render(tmpl, contexts[i])
			if err != nil {
				return &BatchError{Index: i, Cause: err}
			}
			results[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	GetLogger().WithFields(Fields{
		"hash":  tmpl.Hash()[:12],
		"count": len(contexts),
	}).Debug("Batch rendered")

	return results, nil
}
