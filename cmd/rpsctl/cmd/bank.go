package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sealedrps/internal/settlement"
)

func claimCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <game-id>",
		Short: "Claim the reward of a settled game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseGameID(args[0])
			if err != nil {
				return err
			}
			e, err := loadEnv(cmd, v)
			if err != nil {
				return err
			}
			amount, err := settlement.NewClaimer(e.node, e.logger).Claim(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"gameId": id, "amount": formatAmount(amount)})
		},
	}
}

func claimAllCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "claim-all [game-id...]",
		Short: "Claim every claimable reward in one transaction (default: all own games)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uint64, 0, len(args))
			for _, a := range args {
				id, err := parseGameID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			e, err := loadEnv(cmd, v)
			if err != nil {
				return err
			}
			total, paid, err := settlement.NewClaimer(e.node, e.logger).ClaimAll(cmd.Context(), ids)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"gameIds": paid, "amount": formatAmount(total)})
		},
	}
}

func fundCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "fund <amount>",
		Short: "Move tokens from the wallet into the house balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			e, err := loadEnv(cmd, v)
			if err != nil {
				return err
			}
			if _, err := e.node.FundHouse(cmd.Context(), amount); err != nil {
				return err
			}
			house, err := e.node.HouseBalance(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"house": formatAmount(house)})
		},
	}
}

func mintCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "mint <address> <amount>",
		Short: "Mint tokens on a devnet ledger (genesis.allow-mint)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			e, err := loadEnv(cmd, v)
			if err != nil {
				return err
			}
			if _, err := e.node.Mint(cmd.Context(), args[0], amount); err != nil {
				return err
			}
			bal, err := e.node.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"address": args[0], "balance": formatAmount(bal)})
		},
	}
}

func balanceCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Show an account balance and the house balance (default: own wallet)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, v)
			if err != nil {
				return err
			}
			addr := e.wallet.Address()
			if len(args) == 1 {
				addr = args[0]
			}
			bal, err := e.node.Balance(cmd.Context(), addr)
			if err != nil {
				return err
			}
			house, err := e.node.HouseBalance(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"address": addr,
				"balance": formatAmount(bal),
				"house":   formatAmount(house),
			})
		},
	}
}

func paramsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Show the ledger parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd, v)
			if err != nil {
				return err
			}
			p, err := e.node.Params(cmd.Context())
			if err != nil {
				return err
			}
			count, err := e.node.GameCount(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"params":    p,
				"entryFee":  formatAmount(p.EntryFee),
				"gameCount": count,
			})
		},
	}
}
