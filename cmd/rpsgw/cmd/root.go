package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sealedrps/internal/config"
	"sealedrps/internal/gateway"
	"sealedrps/internal/ledgerclient"
	"sealedrps/internal/retry"
	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/telemetry"
	"sealedrps/internal/types"
)

// NewRootCmd creates the rpsgw root command. It is called once in main.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:           "rpsgw",
		Short:         "Decryption gateway for confidential rock/paper/scissors",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	config.AddFlags(rootCmd, v)
	rootCmd.AddCommand(startCmd(v), keygenCmd())
	return rootCmd
}

func startCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Serve user-decrypt requests until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromCommand(cmd, v)
			if err != nil {
				return err
			}
			return start(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("listen", config.DefaultGatewayAddr, "HTTP listen address")
	cmd.Flags().String("metrics", "", "Prometheus listen address (empty disables)")
	_ = v.BindPFlag("gateway.listen", cmd.Flags().Lookup("listen"))
	_ = v.BindPFlag("metrics.listen", cmd.Flags().Lookup("metrics"))
	return cmd
}

// ledgerSource reads ciphertext records from the node, retrying transport
// failures inside the configured window. A missing handle is final.
func ledgerSource(l ledgerclient.Ledger, policy retry.Policy) gateway.CiphertextSource {
	return gateway.CiphertextSourceFunc(func(ctx context.Context, h types.Handle) (types.CiphertextRecord, error) {
		var rec types.CiphertextRecord
		err := policy.Do(ctx, func(ctx context.Context) error {
			r, err := l.Ciphertext(ctx, h)
			if errors.Is(err, types.ErrNotFound) {
				return retry.Permanent(err)
			}
			if err != nil {
				return err
			}
			rec = r
			return nil
		})
		return rec, err
	})
}

func start(parent context.Context, cfg *config.Config) error {
	logger, err := cfg.Logger(os.Stderr)
	if err != nil {
		return err
	}
	if cfg.Gateway.Secret == "" {
		return fmt.Errorf("gateway.secret is required (see rpsgw keygen)")
	}
	kp, err := sealcrypto.KeyPairFromSecret(cfg.Gateway.Secret)
	if err != nil {
		return fmt.Errorf("gateway secret: %w", err)
	}
	if want := cfg.Genesis.NetworkKey; want != "" && !strings.EqualFold(strings.TrimPrefix(want, "0x"), strings.TrimPrefix(sealcrypto.BytesToHex(kp.PK.Bytes()), "0x")) {
		logger.Warn("gateway key does not match genesis network key", "genesis", want)
	}

	node, err := ledgerclient.DialRPC(cfg.Node.RPC, nil, logger)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	svc := gateway.NewService(
		gateway.NewDecryptor(kp, sealcrypto.NewRandSource(nil)),
		ledgerSource(node, cfg.Retry),
		cfg.Session.Domain,
		gateway.WithLogger(logger),
		gateway.WithMetrics(telemetry.NewGatewayMetrics(reg)),
	)
	srv := gateway.NewServer(svc)

	go func() {
		if err := telemetry.Serve(ctx, cfg.Metrics.Listen, reg, logger); err != nil {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.ShutdownWithTimeout(5 * time.Second)
	}()

	logger.Info("gateway listening", "addr", cfg.Gateway.Listen, "node", cfg.Node.RPC)
	return srv.Listen(cfg.Gateway.Listen)
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a network key pair",
		Long:  "Prints a fresh network secret for gateway.secret and its public key for genesis.network-key.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := sealcrypto.GenerateKeyPair(sealcrypto.NewRandSource(nil))
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"secret":    sealcrypto.BytesToHex(kp.SK.Bytes()),
				"publicKey": sealcrypto.BytesToHex(kp.PK.Bytes()),
			})
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

