package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cometbft/cometbft/abci/server"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sealedrps/internal/app"
	"sealedrps/internal/config"
	"sealedrps/internal/telemetry"
)

// NewRootCmd creates the rpsd root command. It is called once in main.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:           "rpsd",
		Short:         "Confidential rock/paper/scissors ledger node (ABCI)",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	config.AddFlags(rootCmd, v)
	rootCmd.AddCommand(startCmd(v))
	return rootCmd
}

func startCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the ABCI application until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromCommand(cmd, v)
			if err != nil {
				return err
			}
			return start(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", config.DefaultABCIAddr, "ABCI listen address")
	cmd.Flags().String("transport", "socket", "ABCI transport (socket|grpc)")
	cmd.Flags().String("metrics", "", "Prometheus listen address (empty disables)")
	_ = v.BindPFlag("node.abci-addr", cmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("node.transport", cmd.Flags().Lookup("transport"))
	_ = v.BindPFlag("metrics.listen", cmd.Flags().Lookup("metrics"))
	return cmd
}

func start(parent context.Context, cfg *config.Config) error {
	logger, err := cfg.Logger(os.Stderr)
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := dbm.NewDB("rps", dbm.GoLevelDBBackend, cfg.DataDir())
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a, err := app.New(db, cfg.Genesis, logger, telemetry.NewLedgerMetrics(reg))
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	srv, err := server.NewServer(cfg.Node.ABCIAddr, cfg.Node.Transport, a)
	if err != nil {
		return fmt.Errorf("abci server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("abci server start: %w", err)
	}
	defer func() { _ = srv.Stop() }()
	logger.Info("abci server listening", "addr", cfg.Node.ABCIAddr, "transport", cfg.Node.Transport, "home", cfg.Home)

	errCh := make(chan error, 1)
	go func() { errCh <- telemetry.Serve(ctx, cfg.Metrics.Listen, reg, logger) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		<-ctx.Done()
		return nil
	}
}
