package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrLoadTimeout is returned by Join when a source does not complete its
// first load in time.
var ErrLoadTimeout = errors.New("sources did not finish loading")

// Join blocks until every source has completed its first load. A timeout of
// zero waits for as long as ctx allows. The first failed source aborts the
// join with its error.
func Join(ctx context.Context, timeout time.Duration, sources ...*Vector) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sources {
		g.Go(func() error {
			select {
			case <-s.Loaded():
				if err := s.Err(); err != nil {
					return fmt.Errorf("source %s: %w", s.Name(), err)
				}
				return nil
			case <-gctx.Done():
				return nil
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	pending := Pending(sources...)
	if len(pending) == 0 {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %s", ErrLoadTimeout, timeout, strings.Join(pending, ", "))
	}
	return ctx.Err()
}

// Pending returns the names of sources that have not completed a load.
func Pending(sources ...*Vector) []string {
	var names []string
	for _, s := range sources {
		select {
		case <-s.Loaded():
		default:
			names = append(names, s.Name())
		}
	}
	return names
}
