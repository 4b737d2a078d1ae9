package correlate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/weiihann/benchcorr/scan"
	"github.com/weiihann/benchcorr/tokens"
)

// RunPlaceholder in an artifact path is replaced by the 1-based repetition
// index.
const RunPlaceholder = "{run}"

// RepetitionRecord holds everything measured in one repetition.
type RepetitionRecord struct {
	Index          int                  `json:"run"`
	GasByMethod    *scan.GasByMethod    `json:"gas_by_method,omitempty"`
	ContainerStats []scan.ContainerStat `json:"container_stats"`
}

// Artifacts are the repetition-scoped inputs of one repetition.
type Artifacts struct {
	Channel    tokens.Opener
	MonitorLog scan.Source
	ExecLog    scan.Source
}

// ArtifactsFunc resolves the artifacts of repetition index.
type ArtifactsFunc func(index int) Artifacts

// PathArtifacts resolves artifacts from path templates that may contain
// RunPlaceholder.
func PathArtifacts(channel, monitorLog, execLog string) ArtifactsFunc {
	return func(index int) Artifacts {
		return Artifacts{
			Channel:    tokens.Path(ExpandPath(channel, index)),
			MonitorLog: scan.File(ExpandPath(monitorLog, index)),
			ExecLog:    scan.File(ExpandPath(execLog, index)),
		}
	}
}

// ExpandPath substitutes the repetition index into path.
func ExpandPath(path string, index int) string {
	return strings.ReplaceAll(path, RunPlaceholder, strconv.Itoa(index))
}

// Runner correlates repetitions one after another.
type Runner struct {
	Artifacts  ArtifactsFunc
	Containers int
	WantsGas   bool
	Logger     *slog.Logger
}

// NewRunner creates a Runner. containers is the number of identifiers that
// completes a repetition; 0 waits for the identifier stream to close.
func NewRunner(
	artifacts ArtifactsFunc,
	containers int,
	wantsGas bool,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		Artifacts:  artifacts,
		Containers: containers,
		WantsGas:   wantsGas,
		Logger:     logger,
	}
}

// RunRepetition opens fresh artifact handles, scans every announced
// container and, when gas is wanted, the settled execution log.
func (r *Runner) RunRepetition(ctx context.Context, index int) (RepetitionRecord, error) {
	logger := r.Logger.With(slog.Int("run", index))
	artifacts := r.Artifacts(index)

	logger.InfoContext(ctx, "waiting for containers",
		slog.Int("expected", r.Containers),
	)

	stream, err := artifacts.Channel.Open(ctx)
	if err != nil {
		return RepetitionRecord{}, fmt.Errorf("run %d: %w", index, err)
	}

	start := time.Now()

	stats, err := Dispatch(ctx, stream, r.Containers,
		func(ctx context.Context, id string) (scan.ContainerStat, error) {
			logger.DebugContext(ctx, "container announced", slog.String("container", id))

			stat, err := scan.ScanContainer(ctx, logger, id, artifacts.MonitorLog)
			if err != nil {
				return scan.ContainerStat{}, err
			}

			logger.DebugContext(ctx, "container scanned",
				slog.String("container", id),
				slog.Int64("runtime_s", stat.RuntimeSeconds),
				slog.Int64("peak_memory_mb", stat.PeakMemoryMB),
			)

			return stat, nil
		},
	)
	if err != nil {
		return RepetitionRecord{}, fmt.Errorf("run %d: %w", index, err)
	}

	record := RepetitionRecord{Index: index, ContainerStats: stats}

	if r.WantsGas {
		gas, err := scan.ScanGas(ctx, artifacts.ExecLog)
		if err != nil {
			return RepetitionRecord{}, fmt.Errorf("run %d: %w", index, err)
		}

		record.GasByMethod = gas
	}

	logger.InfoContext(ctx, "repetition correlated",
		slog.Int("containers", len(stats)),
		slog.Int("methods", record.GasByMethod.Len()),
		slog.Duration("elapsed", time.Since(start)),
	)

	return record, nil
}

// Run executes repetitions 1..n strictly in sequence. onRecord, if set, is
// called after each repetition completes. Records gathered before a
// failure are returned with the error.
func (r *Runner) Run(
	ctx context.Context,
	n int,
	onRecord func(RepetitionRecord) error,
) ([]RepetitionRecord, error) {
	records := make([]RepetitionRecord, 0, n)

	for i := 1; i <= n; i++ {
		record, err := r.RunRepetition(ctx, i)
		if err != nil {
			return records, err
		}

		records = append(records, record)

		if onRecord != nil {
			if err := onRecord(record); err != nil {
				return records, err
			}
		}
	}

	return records, nil
}
