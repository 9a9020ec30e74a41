package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cosmossdk.io/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sealedrps/internal/authz"
	"sealedrps/internal/config"
	"sealedrps/internal/coordinator"
	"sealedrps/internal/engine"
	"sealedrps/internal/gateway"
	"sealedrps/internal/ledgerclient"
	"sealedrps/internal/session"
	"sealedrps/internal/types"
)

const flagYes = "yes"

// NewRootCmd creates the rpsctl root command. It is called once in main.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:           "rpsctl",
		Short:         "Play and administer confidential rock/paper/scissors",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	config.AddFlags(rootCmd, v)
	rootCmd.PersistentFlags().String("key", "", "wallet private key in hex (or RPS_WALLET_KEY)")
	rootCmd.PersistentFlags().BoolP(flagYes, "y", false, "approve decryption authorizations without prompting")
	_ = v.BindPFlag("wallet.key", rootCmd.PersistentFlags().Lookup("key"))

	rootCmd.AddCommand(
		playCmd(v),
		resumeCmd(v),
		statusCmd(v),
		gamesCmd(v),
		claimCmd(v),
		claimAllCmd(v),
		fundCmd(v),
		mintCmd(v),
		balanceCmd(v),
		paramsCmd(v),
		randomnessCmd(v),
		keygenCmd(),
	)
	return rootCmd
}

// env is what a subcommand needs to talk to the node and the gateway.
type env struct {
	cfg    *config.Config
	logger log.Logger
	wallet *authz.KeyWallet
	node   *ledgerclient.RPC
	gw     *gateway.Client
}

func loadEnv(cmd *cobra.Command, v *viper.Viper) (*env, error) {
	cfg, err := config.FromCommand(cmd, v)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	if cfg.Wallet.Key == "" {
		return nil, fmt.Errorf("a wallet key is required (--key or RPS_WALLET_KEY)")
	}
	wallet, err := authz.KeyWalletFromHex(cfg.Wallet.Key)
	if err != nil {
		return nil, err
	}
	if yes, _ := cmd.Flags().GetBool(flagYes); !yes {
		wallet.WithApproval(prompt(cmd))
	}
	node, err := ledgerclient.DialRPC(cfg.Node.RPC, wallet, logger)
	if err != nil {
		return nil, err
	}
	gw := gateway.NewClient(cfg.Gateway.URL, &http.Client{Timeout: cfg.Gateway.Timeout})
	return &env{cfg: cfg, logger: logger, wallet: wallet, node: node, gw: gw}, nil
}

// prompt asks on the terminal before a decryption authorization is signed.
// Ledger transactions are signed without asking.
func prompt(cmd *cobra.Command) authz.ApprovalFunc {
	in := bufio.NewReader(cmd.InOrStdin())
	return func(_ context.Context, what string) error {
		if what != authz.PrimaryType {
			return nil
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Sign %s to let the gateway reveal your game? [y/N] ", what)
		line, _ := in.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return nil
		}
		return fmt.Errorf("declined")
	}
}

func (e *env) session(ctx context.Context) (*session.Session, error) {
	params, err := e.node.Params(ctx)
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	eng := engine.New(e.gw, params.ContractAddress, engine.WithLogger(e.logger))
	coord, err := coordinator.New(e.gw, e.node, params.NetworkKeyBytes(), e.cfg.Gateway.CacheSize,
		coordinator.WithPolicy(e.cfg.Retry),
		coordinator.WithLogger(e.logger),
	)
	if err != nil {
		return nil, err
	}
	return session.New(e.node, eng, coord, e.wallet, e.cfg.Session, session.WithLogger(e.logger)), nil
}

func parseGameID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid game id %q", s)
	}
	return id, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// gameView is a game as printed by rpsctl, with amounts in tokens.
type gameView struct {
	ID           uint64 `json:"id"`
	Player       string `json:"player"`
	Bet          string `json:"bet"`
	Status       string `json:"status"`
	PlayerChoice string `json:"playerChoice,omitempty"`
	SystemChoice string `json:"systemChoice,omitempty"`
	Result       string `json:"result"`
	Reward       string `json:"reward,omitempty"`
	Claimable    bool   `json:"claimable,omitempty"`
}

func viewOf(g types.Game) gameView {
	v := gameView{
		ID:        g.ID,
		Player:    g.Player,
		Bet:       formatAmount(g.BetAmount),
		Status:    string(g.Status()),
		Result:    g.FinalResult.String(),
		Claimable: g.Claimable(g.Player),
	}
	if g.Settled {
		v.PlayerChoice = types.Choice(g.DecryptedPlayerChoice).String()
		v.SystemChoice = types.Choice(g.DecryptedSystemChoice).String()
		v.Reward = formatAmount(g.Reward)
	}
	return v
}

// describe tells the user where the bet stands when a play fails part way.
func describe(cmd *cobra.Command, err error) error {
	var se *session.StageError
	if !errors.As(err, &se) {
		return err
	}
	if se.GameID != 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "game %d: funds %s; run `rpsctl resume %d` to finish it\n", se.GameID, se.Funds, se.GameID)
	}
	if types.IsTransient(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), "the failure is transient; retrying may succeed")
	}
	return err
}
