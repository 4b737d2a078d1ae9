// Package report averages correlated repetitions into per-method gas and
// per-role resource figures and renders them as CSV, a table or JSON.
package report

import (
	"strconv"

	"github.com/montanaflynn/stats"
	"github.com/weiihann/benchcorr/correlate"
)

// Options controls aggregation.
type Options struct {
	// WantsGas includes per-method gas averages.
	WantsGas bool
	// Roles names container roles by position. Unnamed roles use their
	// index.
	Roles []string
	// Methods fixes the order of method rows. Methods seen in the logs but
	// not listed follow in first-seen order.
	Methods []string
}

// MethodAverage is the pooled gas average of one method.
type MethodAverage struct {
	Method     string `json:"method"`
	AverageGas int64  `json:"average_gas"`
	Calls      int    `json:"calls"`
}

// RoleAverage is the averaged footprint of the container in one position.
type RoleAverage struct {
	Role           int    `json:"role"`
	Name           string `json:"name"`
	RuntimeSeconds int64  `json:"runtime_seconds"`
	PeakMemoryMB   int64  `json:"peak_memory_mb"`
	Samples        int    `json:"samples"`
}

// Report is the aggregate of a benchmark. Runs keeps the per-repetition
// records for raw emission.
type Report struct {
	Methods []MethodAverage              `json:"methods,omitempty"`
	Roles   []RoleAverage                `json:"roles"`
	Runs    []correlate.RepetitionRecord `json:"runs,omitempty"`
}

// Aggregate averages records. It does not modify records and returns the
// same Report for the same input.
func Aggregate(records []correlate.RepetitionRecord, opts Options) Report {
	rep := Report{Runs: records}

	if opts.WantsGas {
		for _, method := range methodOrder(records, opts.Methods) {
			var pooled []int64
			for _, r := range records {
				pooled = append(pooled, r.GasByMethod.Values(method)...)
			}

			if len(pooled) == 0 {
				continue
			}

			rep.Methods = append(rep.Methods, MethodAverage{
				Method:     method,
				AverageGas: roundedMean(pooled),
				Calls:      len(pooled),
			})
		}
	}

	roles := 0
	for _, r := range records {
		roles = max(roles, len(r.ContainerStats))
	}

	for role := range roles {
		var runtimes, memories []int64

		for _, r := range records {
			if role >= len(r.ContainerStats) {
				continue
			}

			runtimes = append(runtimes, r.ContainerStats[role].RuntimeSeconds)
			memories = append(memories, r.ContainerStats[role].PeakMemoryMB)
		}

		rep.Roles = append(rep.Roles, RoleAverage{
			Role:           role,
			Name:           RoleName(opts.Roles, role),
			RuntimeSeconds: roundedMean(runtimes),
			PeakMemoryMB:   roundedMean(memories),
			Samples:        len(runtimes),
		})
	}

	return rep
}

// RoleName returns the configured name of role, or its index.
func RoleName(names []string, role int) string {
	if role < len(names) && names[role] != "" {
		return names[role]
	}

	return strconv.Itoa(role)
}

// methodOrder lists declared methods first, then the remaining methods in
// the order they first appear across records.
func methodOrder(records []correlate.RepetitionRecord, declared []string) []string {
	seen := make(map[string]bool)
	order := make([]string, 0, len(declared))

	for _, m := range declared {
		if !seen[m] {
			seen[m] = true
			order = append(order, m)
		}
	}

	for _, r := range records {
		for _, m := range r.GasByMethod.Methods() {
			if !seen[m] {
				seen[m] = true
				order = append(order, m)
			}
		}
	}

	return order
}

// Mean returns the arithmetic mean of values, or 0 when empty.
func Mean(values []int64) float64 {
	data := make(stats.Float64Data, len(values))
	for i, v := range values {
		data[i] = float64(v)
	}

	mean, err := stats.Mean(data)
	if err != nil {
		return 0
	}

	return mean
}

func roundedMean(values []int64) int64 {
	rounded, err := stats.Round(Mean(values), 0)
	if err != nil {
		return 0
	}

	return int64(rounded)
}
