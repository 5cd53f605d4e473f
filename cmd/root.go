package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string // Log verbosity level

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "hpcsim",
	Short: "Discrete-event simulator for HPC batch schedulers",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// runCmd simulates the workload under every configured policy
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a workload on a cluster under one or more scheduling policies",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		startTime := time.Now()
		if err := execute(ctx, cfg, os.Stdout); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %s.", time.Since(startTime).Round(time.Millisecond))
	},
}

// validateCmd loads every input without simulating
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration, cluster description and workload",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := validate(cfg, os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// inspectCmd prints workload statistics
var inspectCmd = &cobra.Command{
	Use:   "inspect [workload files or globs]",
	Short: "Print statistics of a workload",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		overrides, _ := cmd.Flags().GetString("overrides")
		if err := inspect(args, overrides, os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	addConfigFlags(runCmd.Flags())
	addConfigFlags(validateCmd.Flags())
	inspectCmd.Flags().String("overrides", "", "YAML overrides applied to the loaded jobs")

	rootCmd.AddCommand(runCmd, validateCmd, inspectCmd)
}
