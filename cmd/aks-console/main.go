package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/kubestellar/aks-console/pkg/aggregator"
	"github.com/kubestellar/aks-console/pkg/api"
	"github.com/kubestellar/aks-console/pkg/azure"
	"github.com/kubestellar/aks-console/pkg/config"
	"github.com/kubestellar/aks-console/pkg/cost"
	"github.com/kubestellar/aks-console/pkg/k8s"
	"github.com/kubestellar/aks-console/pkg/logging"
	"github.com/kubestellar/aks-console/pkg/session"
)

// overridden during build with ldflags
var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:    "aks-console",
		Usage:   "Serve AKS cluster health, logs and cost over HTTP",
		Version: version,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "port to listen on",
				Value:   5000,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "dotenv file with credential defaults, watched for changes",
				Value:   ".env",
				Sources: cli.EnvVars("ENV_FILE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "also write JSON logs to this file, rotated",
				Sources: cli.EnvVars("LOG_FILE"),
			},
			&cli.BoolFlag{
				Name:    "dev",
				Usage:   "human-readable logs and startup banner",
				Sources: cli.EnvVars("DEV_MODE"),
			},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cmd.String("log-level")
	logCfg.FilePath = cmd.String("log-file")
	logCfg.Development = cmd.Bool("dev")
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	// The watcher captures the real process environment before the env file
	// is merged into it.
	envFile := cmd.String("env-file")
	defaults, err := config.NewDefaultsWatcher(envFile, logger.Named("config"))
	if err != nil {
		return err
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load env file", zap.String("path", envFile), zap.Error(err))
	}

	cfg := api.LoadConfigFromEnv()
	cfg.EnvFile = envFile
	cfg.LogLevel = logCfg.Level
	cfg.LogFile = logCfg.FilePath
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("dev") {
		cfg.DevMode = cmd.Bool("dev")
	}

	configLog := logger.Named("config")
	defaults.OnReload(func(d config.Defaults) {
		configLog.Info("credential defaults reloaded",
			zap.Bool("clientId", d.ClientID != ""),
			zap.Bool("clientSecret", d.ClientSecret != ""),
			zap.Bool("tenantId", d.TenantID != ""),
			zap.String("subscriptionId", d.SubscriptionID))
	})
	if err := defaults.Watch(ctx); err != nil {
		logger.Warn("credential defaults will not reload", zap.Error(err))
	}

	store, err := session.NewStore()
	if err != nil {
		return err
	}

	azureLog := logger.Named("azure")
	controlPlane := func(s *session.Session) (aggregator.ControlPlane, error) {
		c, err := azure.ForSession(s, azureLog, nil)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	usage := func(s *session.Session) (cost.UsageSource, error) {
		c, err := azure.ForSession(s, azureLog, nil)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	engine := aggregator.NewEngine(controlPlane, k8s.NewFetcher(k8s.WithTimeout(cfg.ClusterTimeout)), logger.Named("aggregator"))
	costs := cost.NewAggregator(usage, logger.Named("cost"))

	server, err := api.NewServer(cfg, api.Services{
		Store:    store,
		Defaults: defaults,
		Clusters: engine,
		Costs:    costs,
	}, logger.Named("api"))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return server.Shutdown()
	}
}
