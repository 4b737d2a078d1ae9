package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiihann/benchcorr/correlate"
	"github.com/weiihann/benchcorr/scan"
)

func gasOf(pairs ...any) *scan.GasByMethod {
	gas := scan.NewGasByMethod()
	for i := 0; i < len(pairs); i += 2 {
		gas.Add(pairs[i].(string), int64(pairs[i+1].(int)))
	}

	return gas
}

func sampleRecords() []correlate.RepetitionRecord {
	return []correlate.RepetitionRecord{
		{
			Index:       1,
			GasByMethod: gasOf("submitPublicKey", 21000, "defendShare", 45000, "x", 100),
			ContainerStats: []scan.ContainerStat{
				{RuntimeSeconds: 10, PeakMemoryMB: 200},
				{RuntimeSeconds: 4, PeakMemoryMB: 100},
			},
		},
		{
			Index:       2,
			GasByMethod: gasOf("submitPublicKey", 23000, "submitPublicKey", 22000, "x", 300),
			ContainerStats: []scan.ContainerStat{
				{RuntimeSeconds: 13, PeakMemoryMB: 201},
				{RuntimeSeconds: 5, PeakMemoryMB: 100},
			},
		},
	}
}

func TestAggregateGasAverages(t *testing.T) {
	rep := Aggregate(sampleRecords(), Options{WantsGas: true})

	assert.Equal(t, []MethodAverage{
		{Method: "submitPublicKey", AverageGas: 22000, Calls: 3},
		// Absent from run 2, so only run 1 contributes.
		{Method: "defendShare", AverageGas: 45000, Calls: 1},
		{Method: "x", AverageGas: 200, Calls: 2},
	}, rep.Methods)
}

func TestAggregateRoleAverages(t *testing.T) {
	rep := Aggregate(sampleRecords(), Options{Roles: []string{"defendShare"}})

	assert.Empty(t, rep.Methods)
	assert.Equal(t, []RoleAverage{
		{Role: 0, Name: "defendShare", RuntimeSeconds: 12, PeakMemoryMB: 201, Samples: 2},
		{Role: 1, Name: "1", RuntimeSeconds: 5, PeakMemoryMB: 100, Samples: 2},
	}, rep.Roles)
}

func TestAggregateDeclaredMethodOrder(t *testing.T) {
	rep := Aggregate(sampleRecords(), Options{
		WantsGas: true,
		Methods:  []string{"x", "neverCalled", "defendShare"},
	})

	var order []string
	for _, m := range rep.Methods {
		order = append(order, m.Method)
	}

	assert.Equal(t, []string{"x", "defendShare", "submitPublicKey"}, order)
}

func TestAggregateIdempotent(t *testing.T) {
	records := sampleRecords()
	opts := Options{WantsGas: true, Roles: []string{"a", "b"}}

	first := Aggregate(records, opts)
	second := Aggregate(records, opts)
	assert.Equal(t, first, second)

	var a, b bytes.Buffer
	require.NoError(t, Write(&a, first, FormatCSV, ModeBoth))
	require.NoError(t, Write(&b, second, FormatCSV, ModeBoth))
	assert.Equal(t, a.String(), b.String())
}

func TestAggregateEmpty(t *testing.T) {
	rep := Aggregate(nil, Options{WantsGas: true})
	assert.Empty(t, rep.Methods)
	assert.Empty(t, rep.Roles)
}

func TestWriteRunsCSV(t *testing.T) {
	rep := Aggregate(sampleRecords(), Options{
		WantsGas: true,
		Roles:    []string{"defendShare", "submitPublicKey"},
	})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rep, FormatCSV, ModeRuns))

	want := strings.Join([]string{
		"run,gas_submitPublicKey,gas_defendShare,gas_x," +
			"time_in_s_defendShare,memory_in_mb_defendShare," +
			"time_in_s_submitPublicKey,memory_in_mb_submitPublicKey",
		"1,21000,45000,100,10,200,4,100",
		"2,22500,,300,13,201,5,100",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestWriteSummaryCSV(t *testing.T) {
	rep := Aggregate(sampleRecords(), Options{
		WantsGas: true,
		Roles:    []string{"defendShare", "submitPublicKey", "spare"},
	})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rep, FormatCSV, ModeSummary))

	want := strings.Join([]string{
		"method,avggascosts,memory_in_mb,time_in_s",
		"submitPublicKey,22000,100,5",
		"defendShare,45000,201,12",
		"x,200,0,0",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestWriteSummaryWithoutGas(t *testing.T) {
	rep := Aggregate(sampleRecords(), Options{Roles: []string{"keygen"}})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rep, FormatCSV, ModeSummary))

	want := strings.Join([]string{
		"method,avggascosts,memory_in_mb,time_in_s",
		"keygen,,201,12",
		"1,,100,5",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestWriteBothCSV(t *testing.T) {
	rep := Aggregate(sampleRecords(), Options{WantsGas: true})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rep, FormatCSV, ModeBoth))

	sections := strings.Split(buf.String(), "\n\n")
	require.Len(t, sections, 2)
	assert.True(t, strings.HasPrefix(sections[0], "run,"))
	assert.True(t, strings.HasPrefix(sections[1], "method,avggascosts"))
}

func TestWriteTable(t *testing.T) {
	rep := Aggregate(sampleRecords(), Options{WantsGas: true})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rep, FormatTable, ModeSummary))

	output := buf.String()
	assert.Contains(t, output, "avggascosts")
	assert.Contains(t, output, "submitPublicKey")
	assert.Contains(t, output, "22000")
}

func TestWriteJSON(t *testing.T) {
	rep := Aggregate(sampleRecords(), Options{WantsGas: true})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rep, FormatJSON, ModeSummary))

	var parsed struct {
		Methods []MethodAverage              `json:"methods"`
		Roles   []RoleAverage                `json:"roles"`
		Runs    []correlate.RepetitionRecord `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))

	assert.Len(t, parsed.Methods, 3)
	assert.Len(t, parsed.Roles, 2)
	assert.Empty(t, parsed.Runs)
}

func TestWriteUnknown(t *testing.T) {
	rep := Aggregate(nil, Options{})

	require.Error(t, Write(&bytes.Buffer{}, rep, Format("xml"), ModeRuns))
	require.Error(t, Write(&bytes.Buffer{}, rep, FormatCSV, Mode("everything")))
}

func TestGenerateGasCSV(t *testing.T) {
	gas := gasOf("submitPublicKey", 21000, "defendShare", 45000, "submitPublicKey", 21001)

	var buf bytes.Buffer
	require.NoError(t, GenerateGasCSV(&buf, gas))

	want := "method,avggascosts\nsubmitPublicKey,21000.5\ndefendShare,45000\n"
	assert.Equal(t, want, buf.String())
}

func TestRoleName(t *testing.T) {
	names := []string{"keygen", ""}

	assert.Equal(t, "keygen", RoleName(names, 0))
	assert.Equal(t, "1", RoleName(names, 1))
	assert.Equal(t, "2", RoleName(names, 2))
}
