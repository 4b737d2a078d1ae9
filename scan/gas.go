package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/weiihann/benchcorr/extract"
)

// GasByMethod maps a method name to the gas of each of its calls, in call
// order. Methods keep the order in which they were first seen.
type GasByMethod struct {
	order  []string
	values map[string][]int64
}

// NewGasByMethod returns an empty mapping.
func NewGasByMethod() *GasByMethod {
	return &GasByMethod{values: make(map[string][]int64)}
}

// Add appends one call's gas to method.
func (g *GasByMethod) Add(method string, gasUsed int64) {
	if _, ok := g.values[method]; !ok {
		g.order = append(g.order, method)
	}

	g.values[method] = append(g.values[method], gasUsed)
}

// Methods returns method names in first-seen order.
func (g *GasByMethod) Methods() []string {
	if g == nil {
		return nil
	}

	return append([]string(nil), g.order...)
}

// Values returns the gas of every call to method, or nil if it was never
// called.
func (g *GasByMethod) Values(method string) []int64 {
	if g == nil {
		return nil
	}

	return g.values[method]
}

// Len returns the number of distinct methods.
func (g *GasByMethod) Len() int {
	if g == nil {
		return 0
	}

	return len(g.order)
}

// MarshalJSON encodes the mapping as a JSON object.
func (g *GasByMethod) MarshalJSON() ([]byte, error) {
	if g == nil {
		return []byte("null"), nil
	}

	return json.Marshal(g.values)
}

// ScanGas reads the whole execution log and groups the gas of every
// contract call by method. Unlike ScanContainer, a missing log is an error.
func ScanGas(ctx context.Context, src Source) (*GasByMethod, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("open execution log %s: %w", src, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read execution log %s: %w", src, err)
	}

	gas := NewGasByMethod()

	for rec, err := range extract.MatchGasEntries(string(data)) {
		if err != nil {
			return nil, fmt.Errorf("execution log %s: %w", src, err)
		}

		gas.Add(rec.Method, rec.GasUsed)
	}

	return gas, nil
}
