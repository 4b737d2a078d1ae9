package fixture

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiihann/benchcorr/scan"
)

func testConfig(seed int64) Config {
	return Config{
		Containers:          2,
		SamplesPerContainer: 20,
		NoiseContainers:     3,
		Methods:             []string{"submitPublicKey", "defendShare"},
		CallsPerMethod:      4,
		Seed:                seed,
		StartTimestamp:      1_700_000_000_000_000_000,
	}
}

func generate(t *testing.T, cfg Config) (Summary, string, string, string) {
	t.Helper()

	var monitor, exec, ids bytes.Buffer

	sum, err := NewGenerator(cfg).Generate(&monitor, &exec, &ids)
	require.NoError(t, err)

	return sum, monitor.String(), exec.String(), ids.String()
}

func TestGenerateDeterministic(t *testing.T) {
	sum1, m1, e1, i1 := generate(t, testConfig(42))
	sum2, m2, e2, i2 := generate(t, testConfig(42))

	assert.Equal(t, sum1, sum2)
	assert.Equal(t, m1, m2)
	assert.Equal(t, e1, e2)
	assert.Equal(t, i1, i2)

	_, m3, _, _ := generate(t, testConfig(43))
	assert.NotEqual(t, m1, m3)
}

func TestGenerateCounts(t *testing.T) {
	sum, monitor, _, ids := generate(t, testConfig(7))

	assert.Len(t, sum.Containers, 2)
	assert.Len(t, sum.Calls, 8)
	// Every sample is paired with one noise reading.
	assert.Equal(t, 2*20*2, sum.MonitorLines)
	assert.Equal(t, sum.MonitorLines, strings.Count(monitor, "\n"))
	assert.Equal(t, []string{sum.Containers[0].ID, sum.Containers[1].ID}, strings.Fields(ids))
}

func TestGeneratedArtifactsScan(t *testing.T) {
	sum, monitor, exec, _ := generate(t, testConfig(99))
	logger := slog.New(slog.DiscardHandler)

	for _, c := range sum.Containers {
		stat, err := scan.ScanContainer(context.Background(), logger, c.ID, scan.Text(monitor))
		require.NoError(t, err)

		assert.Equal(t, (c.LastTimestamp-c.FirstTimestamp)/1_000_000_000, stat.RuntimeSeconds)
		assert.Equal(t, int64(math.Round(float64(c.PeakMemory)/1_000_000)), stat.PeakMemoryMB)
	}

	gas, err := scan.ScanGas(context.Background(), scan.Text(exec))
	require.NoError(t, err)
	assert.Equal(t, []string{"submitPublicKey", "defendShare"}, gas.Methods())

	want := map[string][]int64{}
	for _, call := range sum.Calls {
		want[call.Method] = append(want[call.Method], call.GasUsed)
	}

	for method, values := range want {
		assert.Equal(t, values, gas.Values(method), method)
	}
}

func TestGenerateNoContainers(t *testing.T) {
	cfg := testConfig(1)
	cfg.Containers = 0

	sum, monitor, _, ids := generate(t, cfg)
	assert.Empty(t, sum.Containers)
	assert.Empty(t, monitor)
	assert.Empty(t, ids)
}
