// Command coldremote receives encrypted cold-chain telemetry from a radio
// gateway and serves the latest reading over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/backkem/coldremote/pkg/config"
	"github.com/backkem/coldremote/pkg/receiver"
)

type options struct {
	ConfigFile string
	LogLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "coldremote",
		Short: "Secure telemetry receiver for cold-chain sensors",
		Long: `coldremote reassembles radio frames forwarded by a gateway over UDP,
authenticates and decrypts them with the pre-shared link key, rejects replays,
and publishes accepted temperature and position readings over HTTP.`,
		Example: `  # Run with a config file
  coldremote -c /etc/coldremote.toml

  # Override the configured log level
  coldremote -c coldremote.toml --log-level debug`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "coldremote.toml", "configuration file")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "override logging level (disabled, error, warn, info, debug, trace)")

	return cmd
}

func run(parent context.Context, opts options) error {
	cfg, err := config.LoadFile(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.LogLevel != "" {
		if _, err := config.ParseLogLevel(opts.LogLevel); err != nil {
			return err
		}
		cfg.Logging.Level = opts.LogLevel
	}

	loggerFactory := cfg.Logging.LoggerFactory()
	log := loggerFactory.NewLogger("coldremote")

	rcfg, err := receiverConfig(cfg, loggerFactory)
	if err != nil {
		return err
	}
	rcfg.OnStateChanged = func(s receiver.State) {
		log.Debugf("state changed: %s", s)
	}

	r, err := receiver.New(rcfg)
	if err != nil {
		return fmt.Errorf("create receiver: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("start receiver: %w", err)
	}
	if addr := r.StatusAddr(); addr != nil {
		log.Infof("status available at http://%s/data", addr)
	}

	<-ctx.Done()
	log.Info("shutting down")

	return r.Stop()
}

// receiverConfig maps a validated file config onto receiver.Config.
func receiverConfig(cfg *config.Config, loggerFactory logging.LoggerFactory) (receiver.Config, error) {
	key, err := cfg.Link.Key()
	if err != nil {
		return receiver.Config{}, err
	}

	return receiver.Config{
		Key:            key,
		LengthMode:     cfg.Link.Mode(),
		MaxFrameSize:   cfg.Link.MaxFrameSize,
		MaxMessageSize: cfg.Link.MaxMessageSize,
		ByteOrder:      cfg.Link.Order(),

		ListenAddr: cfg.Radio.Listen,
		QueueSize:  cfg.Radio.QueueSize,

		DisableStatus: cfg.Status.Disable,
		StatusAddr:    cfg.Status.Listen,

		Advertise: cfg.Discovery.Enable,
		Instance:  cfg.Discovery.Instance,

		StorePath:  cfg.Storage.Path,
		MaxRecords: cfg.Storage.MaxRecords,

		Limits:          cfg.Alarm.Limits(),
		WatchdogTimeout: cfg.Alarm.WatchdogTimeout(),

		LoggerFactory: loggerFactory,
	}, nil
}
