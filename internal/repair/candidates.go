package repair

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/planbiir/gcjfix/internal/geo"
)

// minChunk keeps tiny tracks on a single goroutine
const minChunk = 2048

// Candidates computes the de-shifted coordinate of every point.
//
// Each candidate depends only on its own raw coordinate, so the work is split
// into chunks and spread over at most workers goroutines.
func Candidates(ctx context.Context, points []Point, workers int) ([]geo.Coord, error) {
	out := make([]geo.Coord, len(points))
	if len(points) == 0 {
		return out, ctx.Err()
	}

	workers = max(workers, 1)
	chunk := max((len(points)+workers-1)/workers, minChunk)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(points); start += chunk {
		end := min(start+chunk, len(points))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for j := start; j < end; j++ {
				out[j] = geo.ToWGS(points[j].Coord)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
