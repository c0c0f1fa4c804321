package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fillscope",
		Short:        "24h exchange fill volume from Polygon logs",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "Polygon RPC URL")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address (e.g. :9102)")
	flags.String("out-dir", "./data", "directory for output files")
	flags.String("head-file", "current_block.json", "head snapshot file")
	flags.String("range-file", "block_range.json", "block range file")
	flags.Duration("call-delay", 250*time.Millisecond, "minimum spacing between RPC calls")
	flags.Duration("call-timeout", 10*time.Second, "per-attempt RPC timeout")
	flags.Int("max-attempts", 3, "attempts per RPC call")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")

	headCmd := &cobra.Command{
		Use:   "head",
		Short: "Snapshot the current head block number and timestamp",
		RunE:  runHead,
	}
	root.AddCommand(headCmd)

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a 24h window to a block range",
		RunE:  runResolve,
	}
	addWindowFlags(resolveCmd)
	resolveCmd.Flags().Bool("use-head-file", false, "read the head snapshot written by the head command")
	root.AddCommand(resolveCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate fill volume over the resolved block range",
		RunE:  runAggregate,
	}
	addAggregateFlags(aggregateCmd)
	root.AddCommand(aggregateCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve the window and aggregate fill volume",
		RunE:  runAll,
	}
	addWindowFlags(runCmd)
	addAggregateFlags(runCmd)
	root.AddCommand(runCmd)

	return root
}

func addWindowFlags(cmd *cobra.Command) {
	cmd.Flags().String("date", "", "window start date (YYYY-MM-DD, DD-MM-YYYY, RFC3339 or unix seconds)")
	cmd.Flags().String("window-start", "", "explicit window start (unix seconds or RFC3339)")
	cmd.Flags().String("window-end", "", "explicit window end, defaults to start + 24h")
	cmd.Flags().Duration("block-time", 2*time.Second, "average block time for the lower bound estimate")
	cmd.Flags().Uint64("hint-margin", 2000, "blocks subtracted from the lower bound estimate")
}

func addAggregateFlags(cmd *cobra.Command) {
	cmd.Flags().String("address", "", "exchange contract address")
	cmd.Flags().String("topic0", "", "event topic0, defaults to the decoded event")
	cmd.Flags().Uint32("max-span", 2000, "blocks per eth_getLogs call")
	cmd.Flags().Int("workers", 4, "concurrent eth_getLogs calls")
	cmd.Flags().String("summary-file", "", "summary path, defaults to fills_<date>_summary.json in out-dir")
	cmd.Flags().String("fills-out", "", "write decoded fills as JSONL")
	cmd.Flags().String("errors-out", "", "write malformed logs as JSONL")
	cmd.Flags().String("first-log-out", "", "write the first raw log as JSON")
	cmd.Flags().String("abi-file", "", "ABI JSON for a custom event")
	cmd.Flags().String("event", "", "event name in abi-file")
	cmd.Flags().String("amount-field", "", "integer field summed as volume")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for the result sink")
	cmd.Flags().String("redis-url", "", "Redis URL for the result sink")
	cmd.Flags().Duration("redis-ttl", 0, "expiry of Redis summaries, 0 keeps them")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
