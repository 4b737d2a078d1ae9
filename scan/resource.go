package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"

	"github.com/weiihann/benchcorr/extract"
)

const (
	nanosPerSecond = 1_000_000_000
	bytesPerMB     = 1_000_000

	// maxLineSize bounds a single monitor line.
	maxLineSize = 4 << 20
)

// ContainerStat is the resource footprint of one container in one
// repetition.
type ContainerStat struct {
	RuntimeSeconds int64 `json:"runtime_seconds"`
	PeakMemoryMB   int64 `json:"peak_memory_mb"`
}

// ScanContainer streams the monitor log line by line and derives the
// runtime and peak memory of containerID. A missing log or a container
// with no readings yields a zero ContainerStat, not an error.
func ScanContainer(
	ctx context.Context,
	logger *slog.Logger,
	containerID string,
	src Source,
) (ContainerStat, error) {
	f, err := src.Open()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.WarnContext(ctx, "monitor log missing, container stats default to zero",
				slog.String("container", containerID),
				slog.String("path", src.String()),
			)

			return ContainerStat{}, nil
		}

		return ContainerStat{}, fmt.Errorf("open monitor log %s: %w", src, err)
	}
	defer f.Close()

	var (
		start, end, peak int64
		samples          int
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return ContainerStat{}, err
		}

		sample, ok, err := extract.MatchResourceLine(scanner.Text(), containerID)
		if err != nil {
			return ContainerStat{}, fmt.Errorf(
				"monitor log %s line for %s: %w", src, containerID, err,
			)
		}

		if !ok {
			continue
		}

		if samples == 0 {
			start = sample.Timestamp
		}

		end = sample.Timestamp
		peak = max(peak, sample.MemoryUsage)
		samples++
	}

	if err := scanner.Err(); err != nil {
		return ContainerStat{}, fmt.Errorf("read monitor log %s: %w", src, err)
	}

	if samples == 0 {
		logger.WarnContext(ctx, "no monitor readings for container",
			slog.String("container", containerID),
			slog.String("path", src.String()),
		)
	}

	return newContainerStat(start, end, peak), nil
}

// newContainerStat floors the runtime to whole seconds and rounds the peak
// memory to the nearest megabyte.
func newContainerStat(start, end, peakBytes int64) ContainerStat {
	return ContainerStat{
		RuntimeSeconds: max(0, end-start) / nanosPerSecond,
		PeakMemoryMB:   int64(math.Round(float64(peakBytes) / bytesPerMB)),
	}
}
