package correlate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiihann/benchcorr/scan"
	"github.com/weiihann/benchcorr/tokens"
)

var discard = slog.New(slog.DiscardHandler)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// writeRun lays out the artifacts of one repetition under dir.
func writeRun(t *testing.T, dir string, run int, gas int) {
	t.Helper()

	writeFile(t, filepath.Join(dir, fmt.Sprintf("ids-%d", run)), "ctr-a\nctr-b\n")
	writeFile(t, filepath.Join(dir, fmt.Sprintf("monitor-%d.log", run)),
		fmt.Sprintf("cName=ctr-a timestamp=0 memory_usage=%d\n", run*1_000_000)+
			fmt.Sprintf("cName=ctr-b timestamp=0 memory_usage=%d\n", run*2_000_000)+
			fmt.Sprintf("cName=ctr-a timestamp=%d memory_usage=1\n", run*1_000_000_000)+
			fmt.Sprintf("cName=ctr-b timestamp=%d memory_usage=1\n", run*3_000_000_000),
	)
	writeFile(t, filepath.Join(dir, fmt.Sprintf("exec-%d.log", run)),
		"eth_sendRawTransaction\n  Contract call: ZKDKG#defendShare\n"+
			fmt.Sprintf("  Gas used: %d of 30000000\n", gas),
	)
}

func TestRunnerRun(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, 1, 100)
	writeRun(t, dir, 2, 300)

	runner := NewRunner(PathArtifacts(
		filepath.Join(dir, "ids-{run}"),
		filepath.Join(dir, "monitor-{run}.log"),
		filepath.Join(dir, "exec-{run}.log"),
	), 2, true, discard)

	var seen []int

	records, err := runner.Run(context.Background(), 2, func(rec RepetitionRecord) error {
		seen = append(seen, rec.Index)

		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []int{1, 2}, seen)

	assert.Equal(t, []scan.ContainerStat{
		{RuntimeSeconds: 1, PeakMemoryMB: 1},
		{RuntimeSeconds: 3, PeakMemoryMB: 2},
	}, records[0].ContainerStats)
	assert.Equal(t, []scan.ContainerStat{
		{RuntimeSeconds: 2, PeakMemoryMB: 2},
		{RuntimeSeconds: 6, PeakMemoryMB: 4},
	}, records[1].ContainerStats)

	assert.Equal(t, []int64{100}, records[0].GasByMethod.Values("defendShare"))
	assert.Equal(t, []int64{300}, records[1].GasByMethod.Values("defendShare"))
}

func TestRunnerSkipsGasWhenNotWanted(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, 1, 100)

	runner := NewRunner(PathArtifacts(
		filepath.Join(dir, "ids-{run}"),
		filepath.Join(dir, "monitor-{run}.log"),
		filepath.Join(dir, "absent.log"),
	), 2, false, discard)

	record, err := runner.RunRepetition(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, record.GasByMethod)
	assert.Len(t, record.ContainerStats, 2)
}

func TestRunnerMissingExecLogWithGas(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, 1, 100)

	runner := NewRunner(PathArtifacts(
		filepath.Join(dir, "ids-{run}"),
		filepath.Join(dir, "monitor-{run}.log"),
		filepath.Join(dir, "absent.log"),
	), 2, true, discard)

	_, err := runner.RunRepetition(context.Background(), 1)
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "run 1")
}

func TestRunnerMissingMonitorLog(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, 1, 100)

	runner := NewRunner(PathArtifacts(
		filepath.Join(dir, "ids-{run}"),
		filepath.Join(dir, "no-monitor.log"),
		filepath.Join(dir, "exec-{run}.log"),
	), 2, true, discard)

	record, err := runner.RunRepetition(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []scan.ContainerStat{{}, {}}, record.ContainerStats)
}

func TestRunnerStopsAtFirstFailure(t *testing.T) {
	opened := 0

	runner := NewRunner(func(int) Artifacts {
		return Artifacts{
			Channel: tokens.OpenerFunc(func(context.Context) (tokens.Stream, error) {
				opened++

				return idStream("only-one"), nil
			}),
			MonitorLog: scan.Text(""),
			ExecLog:    scan.Text(""),
		}
	}, 2, false, discard)

	records, err := runner.Run(context.Background(), 3, nil)
	require.ErrorIs(t, err, ErrShortRepetition)
	assert.Empty(t, records)
	assert.Equal(t, 1, opened)
}

func TestRunnerOnRecordError(t *testing.T) {
	stop := errors.New("stop")

	runner := NewRunner(func(int) Artifacts {
		return Artifacts{
			Channel: tokens.OpenerFunc(func(context.Context) (tokens.Stream, error) {
				return idStream("a", "b"), nil
			}),
			MonitorLog: scan.Text(""),
		}
	}, 2, false, discard)

	records, err := runner.Run(context.Background(), 3, func(RepetitionRecord) error {
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Len(t, records, 1)
}

func TestExpandPath(t *testing.T) {
	assert.Equal(t, "/logs/run-7/cadvisor.log", ExpandPath("/logs/run-{run}/cadvisor.log", 7))
	assert.Equal(t, "/tmp/pipe", ExpandPath("/tmp/pipe", 7))
}
