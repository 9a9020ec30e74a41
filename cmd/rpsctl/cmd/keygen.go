package cmd

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"sealedrps/internal/authz"
)

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a wallet key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"key":     hex.EncodeToString(crypto.FromECDSA(key)),
				"address": authz.NewKeyWallet(key).Address(),
			})
		},
	}
}
