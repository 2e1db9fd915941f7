// Package cli implements the stampede command line.
package cli

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/stampede/internal/loadtest"
)

var version = "0.1.0"

type rootOptions struct {
	logLevel  string
	logFormat string
	logger    *log.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{logger: log.New()}

	cmd := &cobra.Command{
		Use:     "stampede",
		Short:   "A closed-model HTTP load generator",
		Version: version,
		Long: `Stampede drives a target HTTP service with a ramping population of
virtual users. Each virtual user loops over a scripted sequence of requests
while checks, latencies and iteration outcomes are aggregated into a
summary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.configureLogger(cmd)
		},
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &loadtest.ConfigurationError{Err: err}
	})

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	return cmd
}

func (o *rootOptions) configureLogger(cmd *cobra.Command) error {
	level, err := log.ParseLevel(o.logLevel)
	if err != nil {
		return &loadtest.ConfigurationError{Err: err}
	}
	o.logger.SetLevel(level)
	o.logger.SetOutput(cmd.ErrOrStderr())

	switch strings.ToLower(o.logFormat) {
	case "json":
		o.logger.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		o.logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return &loadtest.ConfigurationError{Err: fmt.Errorf("unknown log format %q", o.logFormat)}
	}
	return nil
}

// Execute runs the command line with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}
