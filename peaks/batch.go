package peaks

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ExtractAll runs PeakDirections on every sample in odfs, sharing sphere
// between up to workers goroutines. workers <= 0 uses GOMAXPROCS.
//
// The first failing sample cancels the remaining work and its error is
// returned with the sample position.
func ExtractAll(ctx context.Context, odfs [][]float64, sphere *Sphere, params Params, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(odfs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, odf := range odfs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := PeakDirections(odf, sphere, params)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
