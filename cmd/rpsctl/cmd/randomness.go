package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sealedrps/internal/engine"
	"sealedrps/internal/randomness"
)

func randomnessCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "randomness",
		Short: "Run the randomness provider: answer every game waiting for a system choice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd, v)
			if err != nil {
				return err
			}
			params, err := e.node.Params(cmd.Context())
			if err != nil {
				return err
			}
			interval, _ := cmd.Flags().GetDuration("interval")
			p := randomness.NewProvider(e.node, engine.New(e.gw, params.ContractAddress, engine.WithLogger(e.logger)),
				randomness.WithPollInterval(interval),
				randomness.WithLogger(e.logger),
			)
			if once, _ := cmd.Flags().GetBool("once"); once {
				n, err := p.Tick(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int{"answered": n})
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().Duration("interval", randomness.DefaultPollInterval, "poll interval")
	cmd.Flags().Bool("once", false, "answer the pending games once and exit")
	return cmd
}
