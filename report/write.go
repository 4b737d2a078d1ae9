package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/weiihann/benchcorr/correlate"
	"github.com/weiihann/benchcorr/scan"
)

// Mode selects which rows are emitted.
type Mode string

// Emission modes.
const (
	ModeRuns    Mode = "runs"
	ModeSummary Mode = "summary"
	ModeBoth    Mode = "both"
)

// Format selects the rendering.
type Format string

// Output formats.
const (
	FormatCSV   Format = "csv"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// Write renders rep to w.
func Write(w io.Writer, rep Report, format Format, mode Mode) error {
	switch mode {
	case ModeRuns, ModeSummary, ModeBoth:
	default:
		return fmt.Errorf("unknown report mode %q", mode)
	}

	switch format {
	case FormatCSV:
		return writeSections(w, rep, mode, writeCSV)
	case FormatTable:
		return writeSections(w, rep, mode, writeTable)
	case FormatJSON:
		return GenerateJSON(w, rep, mode)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

type sectionWriter func(w io.Writer, header []string, rows [][]string) error

func writeSections(w io.Writer, rep Report, mode Mode, write sectionWriter) error {
	if mode == ModeRuns || mode == ModeBoth {
		header, rows := RunRows(rep)
		if err := write(w, header, rows); err != nil {
			return err
		}
	}

	if mode == ModeBoth {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	if mode == ModeSummary || mode == ModeBoth {
		header, rows := SummaryRows(rep)
		if err := write(w, header, rows); err != nil {
			return err
		}
	}

	return nil
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}

	return nil
}

func writeTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetBorders(tablewriter.Border{Left: true, Right: true})
	table.SetCenterSeparator("|")
	table.AppendBulk(rows)
	table.Render()

	return nil
}

// RunRows lays out one row per repetition:
// run,gas_<method>...,time_in_s_<role>,memory_in_mb_<role>...
// A repetition's gas cell is the rounded mean of its calls to the method
// and is empty if the method was not called.
func RunRows(rep Report) ([]string, [][]string) {
	header := []string{"run"}

	for _, m := range rep.Methods {
		header = append(header, "gas_"+m.Method)
	}

	for _, r := range rep.Roles {
		header = append(header, "time_in_s_"+r.Name, "memory_in_mb_"+r.Name)
	}

	rows := make([][]string, 0, len(rep.Runs))

	for _, run := range rep.Runs {
		row := []string{strconv.Itoa(run.Index)}

		for _, m := range rep.Methods {
			values := run.GasByMethod.Values(m.Method)
			if len(values) == 0 {
				row = append(row, "")

				continue
			}

			row = append(row, formatInt(roundedMean(values)))
		}

		for _, r := range rep.Roles {
			if r.Role >= len(run.ContainerStats) {
				row = append(row, "", "")

				continue
			}

			stat := run.ContainerStats[r.Role]
			row = append(row, formatInt(stat.RuntimeSeconds), formatInt(stat.PeakMemoryMB))
		}

		rows = append(rows, row)
	}

	return header, rows
}

// SummaryRows lays out the averaged summary:
// method,avggascosts,memory_in_mb,time_in_s
// A method row carries the footprint of the role named after it, or zeros.
// Roles not named after a method get their own row with an empty gas cell.
func SummaryRows(rep Report) ([]string, [][]string) {
	header := []string{"method", "avggascosts", "memory_in_mb", "time_in_s"}

	byName := make(map[string]RoleAverage, len(rep.Roles))
	for _, r := range rep.Roles {
		if _, dup := byName[r.Name]; !dup {
			byName[r.Name] = r
		}
	}

	joined := make(map[string]bool)
	rows := make([][]string, 0, len(rep.Methods)+len(rep.Roles))

	for _, m := range rep.Methods {
		role, ok := byName[m.Method]
		if ok {
			joined[m.Method] = true
		}

		rows = append(rows, []string{
			m.Method,
			formatInt(m.AverageGas),
			formatInt(role.PeakMemoryMB),
			formatInt(role.RuntimeSeconds),
		})
	}

	for _, r := range rep.Roles {
		if joined[r.Name] {
			continue
		}

		rows = append(rows, []string{
			r.Name,
			"",
			formatInt(r.PeakMemoryMB),
			formatInt(r.RuntimeSeconds),
		})
	}

	return header, rows
}

// jsonReport is the JSON shape of a Report for a given mode.
type jsonReport struct {
	Methods []MethodAverage              `json:"methods,omitempty"`
	Roles   []RoleAverage                `json:"roles,omitempty"`
	Runs    []correlate.RepetitionRecord `json:"runs,omitempty"`
}

// GenerateJSON writes rep as indented JSON.
func GenerateJSON(w io.Writer, rep Report, mode Mode) error {
	var out jsonReport

	if mode == ModeSummary || mode == ModeBoth {
		out.Methods = rep.Methods
		out.Roles = rep.Roles
	}

	if mode == ModeRuns || mode == ModeBoth {
		out.Runs = rep.Runs
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

// GenerateGasCSV writes method,avggascosts for a single execution log,
// with unrounded averages in first-seen method order.
func GenerateGasCSV(w io.Writer, gas *scan.GasByMethod) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"method", "avggascosts"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, method := range gas.Methods() {
		avg := strconv.FormatFloat(Mean(gas.Values(method)), 'f', -1, 64)
		if err := cw.Write([]string{method, avg}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()

	return cw.Error()
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
