// Package extract pulls structured records out of raw monitoring-agent and
// execution-harness log text. Extractors are stateless; a non-matching line
// is not an error.
package extract

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedField is returned when a matched numeric field does not fit
// a signed 64-bit integer.
var ErrMalformedField = errors.New("malformed numeric field")

// containerField prefixes every resource line emitted by the monitor.
const containerField = "cName="

var (
	timestampField = regexp.MustCompile(`[\s,]timestamp=(\d+)`)
	memoryField    = regexp.MustCompile(`[\s,]memory_usage=(\d+)`)

	// A raw transaction submission, the contract call it produced (method
	// after '#', up to end of line) and the first gas figure that follows.
	gasEntry = regexp.MustCompile(
		`(?ms)eth_sendRawTransaction.*?Contract call:.*?#(.*?)$.*?Gas used:\s*(\d+)`,
	)
)

// ResourceSample is a single monitor reading for one container.
type ResourceSample struct {
	Timestamp   int64
	MemoryUsage int64
}

// GasRecord is one contract call observed in the execution log.
type GasRecord struct {
	Method  string `json:"method"`
	GasUsed int64  `json:"gas_used"`
}

// MatchResourceLine reports whether line is a monitor reading for
// containerID. The identifier must fill the whole cName field; the
// timestamp and memory_usage fields may follow it in any order. When a
// field repeats, its last occurrence wins.
func MatchResourceLine(line, containerID string) (ResourceSample, bool, error) {
	id := strings.TrimSpace(containerID)
	if id == "" || !strings.HasPrefix(line, containerField+id) {
		return ResourceSample{}, false, nil
	}

	rest := line[len(containerField)+len(id):]
	if rest == "" || !isFieldSeparator(rest[0]) {
		return ResourceSample{}, false, nil
	}

	ts := lastSubmatch(timestampField, rest)
	mem := lastSubmatch(memoryField, rest)

	if ts == nil || mem == nil {
		return ResourceSample{}, false, nil
	}

	timestamp, err := parseField("timestamp", ts[1])
	if err != nil {
		return ResourceSample{}, false, err
	}

	memory, err := parseField("memory_usage", mem[1])
	if err != nil {
		return ResourceSample{}, false, err
	}

	return ResourceSample{Timestamp: timestamp, MemoryUsage: memory}, true, nil
}

// MatchGasEntries lazily yields every contract call found in text, in log
// order. Matches never overlap: each search resumes after the previous
// match. Iteration stops after the first malformed gas figure.
func MatchGasEntries(text string) iter.Seq2[GasRecord, error] {
	return func(yield func(GasRecord, error) bool) {
		pos := 0

		for pos < len(text) {
			loc := gasEntry.FindStringSubmatchIndex(text[pos:])
			if loc == nil {
				return
			}

			method := strings.TrimSpace(text[pos+loc[2] : pos+loc[3]])
			raw := text[pos+loc[4] : pos+loc[5]]
			pos += loc[1]

			gas, err := parseField("gas used", raw)
			if err != nil {
				yield(GasRecord{}, fmt.Errorf("method %s: %w", method, err))

				return
			}

			if !yield(GasRecord{Method: method, GasUsed: gas}, nil) {
				return
			}
		}
	}
}

func lastSubmatch(re *regexp.Regexp, s string) []string {
	all := re.FindAllStringSubmatch(s, -1)
	if len(all) == 0 {
		return nil
	}

	return all[len(all)-1]
}

func isFieldSeparator(b byte) bool {
	return b == ' ' || b == '\t' || b == ','
}

func parseField(name, raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrMalformedField, name, raw)
	}

	return v, nil
}
