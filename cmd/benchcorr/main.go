// Package main provides the CLI entry point for benchcorr, which correlates
// container announcements, resource-monitor logs and execution logs of
// repeated benchmark runs into gas, runtime and memory statistics.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/weiihann/benchcorr/config"
	"github.com/weiihann/benchcorr/correlate"
	"github.com/weiihann/benchcorr/fixture"
	"github.com/weiihann/benchcorr/report"
	"github.com/weiihann/benchcorr/scan"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	root := newRootCmd(os.Stdout, os.Stderr)
	err := root.ExecuteContext(ctx)

	stop()

	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "benchcorr",
		Short: "Benchmark telemetry correlator",
		Long: `Benchcorr measures the gas, wall-clock time and peak memory of operations
executed inside ephemeral containers. For every repetition it reads container
identifiers as they are announced, scans the resource monitor log for each
container and the execution log for contract calls, then averages the results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetOut(stdout)
	root.SetErr(stderr)

	pflags := root.PersistentFlags()
	pflags.StringVarP(&configFile, "config", "c", "",
		"Config file (json, yaml or toml)")
	pflags.String("log-level", config.DefaultLogLevel,
		"Log level: debug, info, warn, error")
	pflags.String("log-format", config.DefaultLogFormat,
		"Log format: text, json")

	root.AddCommand(
		newRunCmd(&configFile, stdout, stderr),
		newGasCmd(stdout, stderr),
		newSynthCmd(stderr),
	)

	return root
}

func newRunCmd(configFile *string, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [channel monitor-log exec-log repetitions]",
		Short: "Correlate repeated benchmark runs",
		Long: `Run reads container identifiers from the channel (a named pipe or file),
scans the monitor log for each container and, when gas statistics are wanted,
the execution log. Repetitions run strictly one after another; "{run}" in a
path is replaced by the repetition number.`,
		Args: cobra.RangeArgs(0, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.NewViper(*configFile, cmd.Flags())
			if err != nil {
				return err
			}

			positional := []string{"channel", "monitor-log", "exec-log", "repetitions"}
			for i, arg := range args {
				v.Set(positional[i], arg)
			}

			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			logger, err := newLogger(stderr, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}

			return runCorrelation(cmd.Context(), logger, cfg, stdout, stderr)
		},
	}

	flags := cmd.Flags()
	flags.String("channel", "",
		"Named pipe or file delivering container identifiers")
	flags.String("monitor-log", "",
		"Resource monitor log (cAdvisor stdout storage driver)")
	flags.String("exec-log", "",
		"Transaction execution log (hardhat node output)")
	flags.Int("repetitions", config.DefaultRepetitions,
		"Number of benchmark repetitions")
	flags.Int("containers", config.DefaultContainers,
		"Containers per repetition (0 = until the channel closes)")
	flags.Bool("gas", true,
		"Collect gas statistics from the execution log")
	flags.StringSlice("roles", nil,
		"Names of the container roles, in launch order")
	flags.StringSlice("methods", nil,
		"Order of method rows in the report")
	flags.String("mode", config.DefaultMode,
		"Report rows: runs, summary, both")
	flags.String("format", config.DefaultFormat,
		"Report format: csv, table, json")
	flags.StringP("output", "o", "",
		"Write the report to this file instead of stdout")
	flags.Bool("progress", false,
		"Show a repetition progress bar on stderr")

	return cmd
}

func runCorrelation(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.Config,
	stdout, stderr io.Writer,
) error {
	logger.InfoContext(ctx, "starting correlation",
		slog.String("channel", cfg.Channel),
		slog.String("monitor_log", cfg.MonitorLog),
		slog.String("exec_log", cfg.ExecLog),
		slog.Int("repetitions", cfg.Repetitions),
		slog.Int("containers", cfg.Containers),
		slog.Bool("gas", cfg.Gas),
	)

	if cfg.Containers == 0 {
		logger.WarnContext(ctx,
			"no container count set, each repetition ends only when the channel closes")
	}

	runner := correlate.NewRunner(
		correlate.PathArtifacts(cfg.Channel, cfg.MonitorLog, cfg.ExecLog),
		cfg.Containers, cfg.Gas, logger,
	)

	var onRecord func(correlate.RepetitionRecord) error

	if cfg.Progress {
		bar := progressbar.NewOptions(cfg.Repetitions,
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription("repetitions"),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(stderr) }),
		)
		onRecord = func(correlate.RepetitionRecord) error { return bar.Add(1) }
	}

	records, err := runner.Run(ctx, cfg.Repetitions, onRecord)
	if err != nil {
		return fmt.Errorf("correlate: %w", err)
	}

	rep := report.Aggregate(records, report.Options{
		WantsGas: cfg.Gas,
		Roles:    cfg.Roles,
		Methods:  cfg.Methods,
	})

	write := func(w io.Writer) error {
		return report.Write(w, rep, report.Format(cfg.Format), report.Mode(cfg.Mode))
	}

	if cfg.Output == "" {
		if err := write(stdout); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	} else {
		f, err := createOutput(cfg.Output)
		if err != nil {
			return err
		}

		if err := writeAndClose(f, write); err != nil {
			return fmt.Errorf("write report %s: %w", cfg.Output, err)
		}
	}

	logger.InfoContext(ctx, "correlation complete",
		slog.Int("repetitions", len(records)),
		slog.Int("methods", len(rep.Methods)),
		slog.Int("roles", len(rep.Roles)),
	)

	return nil
}

func createOutput(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output %s: %w", path, err)
	}

	return f, nil
}

// writeAndClose writes to wc and always closes it. A failed close is
// reported because buffered report data may not have reached the disk.
func writeAndClose(wc io.WriteCloser, write func(io.Writer) error) error {
	if err := write(wc); err != nil {
		wc.Close()

		return err
	}

	if err := wc.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	return nil
}

func newGasCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "gas <exec-log>",
		Short: "Average gas per method from a single execution log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromFlags(cmd, stderr)
			if err != nil {
				return err
			}

			gas, err := scan.ScanGas(cmd.Context(), scan.File(args[0]))
			if err != nil {
				return err
			}

			logger.InfoContext(cmd.Context(), "execution log scanned",
				slog.String("path", args[0]),
				slog.Int("methods", gas.Len()),
			)

			return report.GenerateGasCSV(stdout, gas)
		},
	}
}

func newSynthCmd(stderr io.Writer) *cobra.Command {
	var (
		outDir     string
		containers int
		samples    int
		noise      int
		methods    []string
		calls      int
		seed       int64
		runs       int
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate synthetic monitor and execution logs for dry runs",
		Long: `Synth writes ids-<run>, monitor-<run>.log and exec-<run>.log for each run
into the output directory. Feed them back with
  benchcorr run --channel DIR/ids-{run} --monitor-log DIR/monitor-{run}.log \
    --exec-log DIR/exec-{run}.log --repetitions N`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := loggerFromFlags(cmd, stderr)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			for run := 1; run <= runs; run++ {
				sum, err := synthRun(outDir, run, fixture.Config{
					Containers:          containers,
					SamplesPerContainer: samples,
					NoiseContainers:     noise,
					Methods:             methods,
					CallsPerMethod:      calls,
					Seed:                seed + int64(run),
					StartTimestamp:      1_700_000_000_000_000_000,
				})
				if err != nil {
					return fmt.Errorf("run %d: %w", run, err)
				}

				logger.InfoContext(cmd.Context(), "artifacts generated",
					slog.Int("run", run),
					slog.Int("containers", len(sum.Containers)),
					slog.Int("monitor_lines", sum.MonitorLines),
					slog.Int("calls", len(sum.Calls)),
				)
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&outDir, "out-dir", "synth",
		"Directory for generated artifacts")
	flags.IntVar(&runs, "runs", 1,
		"Number of repetitions to generate")
	flags.IntVar(&containers, "containers", config.DefaultContainers,
		"Containers per repetition")
	flags.IntVar(&samples, "samples", 30,
		"Monitor readings per container")
	flags.IntVar(&noise, "noise", 2,
		"Unannounced containers interleaved in the monitor log")
	flags.StringSliceVar(&methods, "methods",
		[]string{"defendShare", "submitPublicKey"},
		"Contract methods to call")
	flags.IntVar(&calls, "calls", 3,
		"Calls per method per repetition")
	flags.Int64Var(&seed, "seed", 1,
		"Random seed")

	return cmd
}

func synthRun(dir string, run int, cfg fixture.Config) (sum fixture.Summary, err error) {
	suffix := strconv.Itoa(run)

	var files [3]*os.File
	defer func() {
		for _, f := range files {
			if f == nil {
				continue
			}
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close %s: %w", f.Name(), cerr)
			}
		}
	}()

	for i, name := range []string{"monitor-", "exec-", "ids-"} {
		path := filepath.Join(dir, name+suffix)
		if i < 2 {
			path += ".log"
		}
		if files[i], err = os.Create(path); err != nil {
			return fixture.Summary{}, err
		}
	}

	return fixture.NewGenerator(cfg).Generate(files[0], files[1], files[2])
}

func loggerFromFlags(cmd *cobra.Command, w io.Writer) (*slog.Logger, error) {
	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}

	format, err := cmd.Flags().GetString("log-format")
	if err != nil {
		return nil, err
	}

	return newLogger(w, level, format)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
