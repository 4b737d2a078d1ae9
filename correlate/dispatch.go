// Package correlate joins the container identifier stream, the monitor log
// and the execution log of each benchmark repetition into one record.
package correlate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/weiihann/benchcorr/scan"
	"github.com/weiihann/benchcorr/tokens"
	"golang.org/x/sync/errgroup"
)

// ErrShortRepetition is returned when the identifier stream ends before
// the expected number of containers was announced.
var ErrShortRepetition = errors.New("identifier stream ended early")

// ScanFunc derives the stat of one container.
type ScanFunc func(ctx context.Context, containerID string) (scan.ContainerStat, error)

// Dispatch reads identifiers from stream and starts one scan per
// identifier as soon as it arrives. With expected > 0 only the first
// expected identifiers are scanned; later ones are read and discarded.
// Either way the stream is read until its writer closes it (io.EOF), so
// the repetition is not over while the orchestrator still holds the
// channel open. The stream is closed before Dispatch returns.
//
// Results are positional: element i is the stat of the i-th identifier
// received, whatever order the scans finish in.
func Dispatch(
	ctx context.Context,
	stream tokens.Stream,
	expected int,
	scanFn ScanFunc,
) ([]scan.ContainerStat, error) {
	g, gctx := errgroup.WithContext(ctx)

	var (
		mu       sync.Mutex
		stats    []scan.ContainerStat
		received int
		errs     *multierror.Error
	)

	for {
		id, err := stream.Next(gctx)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			errs = multierror.Append(errs,
				fmt.Errorf("read identifier %d: %w", received, err))

			break
		}

		if expected > 0 && received >= expected {
			continue
		}

		role := received
		received++

		mu.Lock()
		stats = append(stats, scan.ContainerStat{})
		mu.Unlock()

		g.Go(func() error {
			stat, err := scanFn(gctx, id)
			if err != nil {
				return fmt.Errorf("scan container %s (role %d): %w", id, role, err)
			}

			mu.Lock()
			stats[role] = stat
			mu.Unlock()

			return nil
		})
	}

	if err := stream.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close identifier stream: %w", err))
	}

	// A failed scan cancels gctx, so its error takes precedence over the
	// read error it caused.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	if expected > 0 && received < expected {
		return nil, fmt.Errorf("%w: received %d of %d identifiers",
			ErrShortRepetition, received, expected)
	}

	return stats, nil
}
