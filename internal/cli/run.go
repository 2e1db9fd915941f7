package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/stampede/internal/loadtest"
	"github.com/wesleyorama2/stampede/internal/loadtest/config"
	"github.com/wesleyorama2/stampede/internal/loadtest/engine"
	"github.com/wesleyorama2/stampede/internal/loadtest/history"
	"github.com/wesleyorama2/stampede/internal/loadtest/live"
	"github.com/wesleyorama2/stampede/internal/loadtest/output"
)

// Quick mode defaults, used with --url and no load profile.
const (
	defaultQuickVUs      = 10
	defaultQuickDuration = 30 * time.Second
)

type runOptions struct {
	*rootOptions

	configFile string
	url        string
	vus        int
	duration   string
	stages     string
	variables  map[string]string

	jsonPath    string
	historyPath string
	liveAddr    string
	quiet       bool
	noColor     bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test",
		Long: `Run a load test from a configuration file or against a single URL.

Config file mode:
  stampede run -c exchange.yaml

Quick mode (one GET request per iteration):
  stampede run --url http://localhost:8080/health --vus 20 --duration 1m

Ramping:
  stampede run -c exchange.yaml --stages "30s:20,1m:20,30s:0"

With a config file, --url replaces settings.baseUrl. --vus/--duration and
--stages replace the load profile of the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.url, "url", "", "Target URL (quick mode) or base URL override")
	cmd.Flags().IntVar(&opts.vus, "vus", 0, "Fixed number of virtual users")
	cmd.Flags().StringVar(&opts.duration, "duration", "", "Run duration for fixed virtual users (e.g. 30s, 5m)")
	cmd.Flags().StringVar(&opts.stages, "stages", "", "Ramp stages as 'duration:target,...'")
	cmd.Flags().StringToStringVar(&opts.variables, "var", nil, "Template variable name=value (repeatable)")
	cmd.Flags().StringVar(&opts.jsonPath, "json", "", "Write the result as JSON to this file ('-' for stdout)")
	cmd.Flags().StringVar(&opts.historyPath, "history", "", "Record the run in this SQLite database")
	cmd.Flags().StringVar(&opts.liveAddr, "live", "", "Serve live progress over websocket on this address (e.g. :8089)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Disable live progress output, show only final summary")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func (o *runOptions) run(cmd *cobra.Command) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	console := output.NewConsole(output.ConsoleConfig{
		Writer:  cmd.OutOrStdout(),
		Quiet:   o.quiet,
		NoColor: o.noColor,
	})

	var eng *engine.Engine
	engineOpts := []engine.Option{
		engine.WithLogger(o.logger),
		engine.WithObserver(func(p engine.Progress) {
			console.Progress(p, eng.Progress(p.Elapsed))
		}),
	}

	var hub *live.Hub
	if o.liveAddr != "" {
		hub = live.NewHub(o.logger)
		srv, err := live.Listen(o.liveAddr, hub)
		if err != nil {
			return fmt.Errorf("failed to start live server: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		o.logger.WithField("addr", srv.Addr().String()).Info("live progress at ws://" + srv.Addr().String() + "/ws")
		engineOpts = append(engineOpts, engine.WithObserver(hub.Publish))
	}

	eng, err = engine.NewEngine(cfg, engineOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console.PrintHeader(cfg)
	result, runErr := eng.Run(ctx)
	if result == nil {
		return runErr
	}

	console.PrintSummary(result)
	if hub != nil {
		hub.Finish(result)
	}

	if err := o.writeJSON(cmd, result); err != nil {
		return err
	}
	if err := o.record(ctx, result); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if !result.Passed {
		return ErrThresholdsFailed
	}
	return nil
}

// loadConfig reads the config file or builds a quick-mode config, then
// applies flag overrides.
func (o *runOptions) loadConfig() (*config.RunConfig, error) {
	var cfg *config.RunConfig
	switch {
	case o.configFile != "":
		c, err := config.LoadConfig(o.configFile)
		if err != nil {
			return nil, &loadtest.ConfigurationError{Err: err}
		}
		cfg = c
		if o.url != "" {
			cfg.Settings.BaseURL = o.url
		}
	case o.url != "":
		cfg = quickConfig(o.url)
	default:
		return nil, &loadtest.ConfigurationError{Err: errors.New("either --config or --url is required")}
	}

	if err := o.applyProfile(cfg); err != nil {
		return nil, &loadtest.ConfigurationError{Err: err}
	}
	if len(o.variables) > 0 {
		cfg.Variables = config.MergeVariables(cfg.Variables, o.variables)
	}
	return cfg, nil
}

func (o *runOptions) applyProfile(cfg *config.RunConfig) error {
	if o.stages != "" {
		if o.vus > 0 || o.duration != "" {
			return errors.New("--stages cannot be combined with --vus or --duration")
		}
		stages, err := parseStages(o.stages)
		if err != nil {
			return fmt.Errorf("invalid stages format: %w", err)
		}
		cfg.Stages = stages
		cfg.VUs = 0
		cfg.Duration = 0
		return nil
	}

	if o.vus > 0 || o.duration != "" {
		cfg.Stages = nil
		if o.vus > 0 {
			cfg.VUs = o.vus
		}
		if o.duration != "" {
			d, err := config.ParseDuration(o.duration)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			cfg.Duration = config.Duration(d)
		}
	}
	return nil
}

// quickConfig builds a config that GETs url in every iteration.
func quickConfig(url string) *config.RunConfig {
	return &config.RunConfig{
		Name:        "Quick run",
		Description: fmt.Sprintf("GET %s", url),
		VUs:         defaultQuickVUs,
		Duration:    config.Duration(defaultQuickDuration),
		Requests: []config.RequestConfig{
			{
				Name:   "request",
				Method: "GET",
				URL:    url,
			},
		},
	}
}

func (o *runOptions) writeJSON(cmd *cobra.Command, result *engine.Result) error {
	switch o.jsonPath {
	case "":
		return nil
	case "-":
		return output.WriteJSON(cmd.OutOrStdout(), result)
	default:
		if err := output.WriteJSONFile(o.jsonPath, result); err != nil {
			return fmt.Errorf("failed to write JSON result: %w", err)
		}
		o.logger.WithField("path", o.jsonPath).Info("result written")
		return nil
	}
}

func (o *runOptions) record(ctx context.Context, result *engine.Result) error {
	if o.historyPath == "" {
		return nil
	}

	// The run may have been interrupted; recording it must not be.
	ctx = context.WithoutCancel(ctx)
	store, err := history.Open(ctx, o.historyPath, o.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Save(ctx, result); err != nil {
		return err
	}
	o.logger.WithFields(log.Fields{"run": result.RunID, "db": o.historyPath}).Info("run recorded")
	return nil
}
