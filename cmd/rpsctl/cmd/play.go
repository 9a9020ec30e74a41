package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sealedrps/internal/session"
	"sealedrps/internal/types"
)

type outcomeView struct {
	Game    gameView `json:"game"`
	Claimed bool     `json:"claimed"`
}

func printOutcome(cmd *cobra.Command, o *session.Outcome) error {
	return printJSON(cmd, outcomeView{Game: viewOf(o.Game), Claimed: o.Claimed})
}

func playCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play <rock|paper|scissors> <bet>",
		Short: "Wager on an encrypted choice and play the game to settlement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			choice, err := types.ParseChoice(args[0])
			if err != nil {
				return err
			}
			bet, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			e, err := loadEnv(cmd, v)
			if err != nil {
				return err
			}
			if noClaim, _ := cmd.Flags().GetBool("no-claim"); noClaim {
				e.cfg.Session.AutoClaim = false
			}
			s, err := e.session(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			out, err := s.Play(ctx, choice, bet)
			if err != nil {
				return describe(cmd, err)
			}
			return printOutcome(cmd, out)
		},
	}
	cmd.Flags().Bool("no-claim", false, "leave the reward on the ledger instead of claiming it")
	return cmd
}

func resumeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <game-id>",
		Short: "Finish a game left unsettled or unclaimed by an earlier play",
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
			s, err := e.session(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			out, err := s.Resume(ctx, id)
			if err != nil {
				return describe(cmd, err)
			}
			return printOutcome(cmd, out)
		},
	}
}

func statusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status <game-id>",
		Short: "Show a game",
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
			g, err := e.node.Game(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, viewOf(g))
		},
	}
}

func gamesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "games [address]",
		Short: "List a player's games in creation order (default: own wallet)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, v)
			if err != nil {
				return err
			}
			player := e.wallet.Address()
			if len(args) == 1 {
				player = args[0]
			}
			ids, err := e.node.PlayerGames(cmd.Context(), player)
			if err != nil {
				return err
			}
			views := make([]gameView, 0, len(ids))
			for _, id := range ids {
				g, err := e.node.Game(cmd.Context(), id)
				if err != nil {
					return err
				}
				views = append(views, viewOf(g))
			}
			return printJSON(cmd, views)
		},
	}
}
