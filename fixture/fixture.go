// Package fixture generates deterministic benchmark artifacts: a
// cAdvisor-style monitor log, a hardhat-style execution log and the
// container identifiers an orchestrator would announce. It lets the
// correlator be exercised without launching containers.
package fixture

import (
	"encoding/hex"
	"fmt"
	"io"
	mrand "math/rand"
	"strings"
)

// Config controls artifact generation.
type Config struct {
	Containers          int
	SamplesPerContainer int
	// NoiseContainers emit readings that belong to no announced container.
	NoiseContainers int
	Methods         []string
	CallsPerMethod  int
	Seed            int64
	// StartTimestamp is the first monitor timestamp in nanoseconds.
	StartTimestamp int64
}

// ContainerTruth is what a correct scan of one container must find.
type ContainerTruth struct {
	ID             string
	FirstTimestamp int64
	LastTimestamp  int64
	PeakMemory     int64
}

// Summary describes the generated artifacts.
type Summary struct {
	Containers   []ContainerTruth
	MonitorLines int
	Calls        []GasCall
}

// GasCall is one generated contract call.
type GasCall struct {
	Method  string
	GasUsed int64
}

// Generator produces deterministic artifacts from a Config.
type Generator struct {
	cfg Config
	rng *mrand.Rand
}

// NewGenerator creates a Generator from the given Config.
func NewGenerator(cfg Config) *Generator {
	return &Generator{
		cfg: cfg,
		rng: mrand.New(mrand.NewSource(cfg.Seed)),
	}
}

type reading struct {
	id        string
	timestamp int64
	memory    int64
}

// Generate writes the monitor log to monitor, the execution log to exec
// and one announced identifier per line to ids.
func (g *Generator) Generate(monitor, exec, ids io.Writer) (Summary, error) {
	var summary Summary

	announced := make([]string, g.cfg.Containers)
	for i := range announced {
		announced[i] = g.randomID()
	}

	noise := make([]string, g.cfg.NoiseContainers)
	for i := range noise {
		noise[i] = g.randomID()
	}

	// Containers run one after another, each sampled once per second or so.
	var readings []reading

	ts := g.cfg.StartTimestamp

	for _, id := range announced {
		truth := ContainerTruth{ID: id}

		for s := 0; s < g.cfg.SamplesPerContainer; s++ {
			ts += int64(1+g.rng.Intn(3)) * 1_000_000_000
			mem := int64(50+g.rng.Intn(450)) * 1_000_000

			if s == 0 {
				truth.FirstTimestamp = ts
			}

			truth.LastTimestamp = ts
			truth.PeakMemory = max(truth.PeakMemory, mem)
			readings = append(readings, reading{id: id, timestamp: ts, memory: mem})

			if len(noise) > 0 {
				other := noise[g.rng.Intn(len(noise))]
				readings = append(readings, reading{
					id:        other,
					timestamp: ts,
					memory:    int64(g.rng.Intn(1000)) * 1_000_000,
				})
			}
		}

		summary.Containers = append(summary.Containers, truth)
	}

	for _, r := range readings {
		if _, err := fmt.Fprintln(monitor, g.monitorLine(r)); err != nil {
			return summary, fmt.Errorf("write monitor line: %w", err)
		}

		summary.MonitorLines++
	}

	for _, id := range announced {
		if _, err := fmt.Fprintln(ids, id); err != nil {
			return summary, fmt.Errorf("write identifier: %w", err)
		}
	}

	block := 1

	for c := 0; c < g.cfg.CallsPerMethod; c++ {
		for _, method := range g.cfg.Methods {
			call := GasCall{Method: method, GasUsed: int64(21000 + g.rng.Intn(200000))}

			if _, err := io.WriteString(exec, g.execBlock(call, block)); err != nil {
				return summary, fmt.Errorf("write exec block: %w", err)
			}

			summary.Calls = append(summary.Calls, call)
			block++
		}
	}

	return summary, nil
}

// monitorLine renders a reading with its fields shuffled after cName.
func (g *Generator) monitorLine(r reading) string {
	fields := []string{
		"cId=" + r.id,
		fmt.Sprintf("timestamp=%d", r.timestamp),
		fmt.Sprintf("memory_usage=%d", r.memory),
		fmt.Sprintf("cpu_usage_total=%d", g.rng.Int63n(1<<40)),
		fmt.Sprintf("rx_bytes=%d", g.rng.Intn(1<<20)),
	}

	g.rng.Shuffle(len(fields), func(i, j int) {
		fields[i], fields[j] = fields[j], fields[i]
	})

	return "cName=" + r.id + " " + strings.Join(fields, " ")
}

// execBlock renders one submitted transaction surrounded by unrelated
// RPC traffic.
func (g *Generator) execBlock(call GasCall, block int) string {
	var b strings.Builder

	fmt.Fprintln(&b, "eth_chainId")
	fmt.Fprintln(&b, "eth_sendRawTransaction")

	if g.rng.Intn(2) == 0 {
		fmt.Fprintln(&b, "eth_blockNumber")
	}

	fmt.Fprintf(&b, "  Contract call:       Bench#%s\n", call.Method)
	fmt.Fprintf(&b, "  Transaction:         %s\n", g.randomHash())
	fmt.Fprintf(&b, "  From:                %s\n", g.randomAddress())
	fmt.Fprintf(&b, "  To:                  %s\n", g.randomAddress())
	fmt.Fprintln(&b, "  Value:               0 ETH")
	fmt.Fprintf(&b, "  Gas used:            %d of 30000000\n", call.GasUsed)
	fmt.Fprintf(&b, "  Block #%d:            %s\n", block, g.randomHash())
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "eth_getTransactionReceipt")

	return b.String()
}

// randomID returns a docker-style 64 hex digit container identifier.
func (g *Generator) randomID() string {
	var buf [32]byte
	g.rng.Read(buf[:])

	return hex.EncodeToString(buf[:])
}

func (g *Generator) randomAddress() string {
	var buf [20]byte
	g.rng.Read(buf[:])

	return "0x" + hex.EncodeToString(buf[:])
}

func (g *Generator) randomHash() string {
	var buf [32]byte
	g.rng.Read(buf[:])

	return "0x" + hex.EncodeToString(buf[:])
}
