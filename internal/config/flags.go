package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const flagConfig = "config"

// AddFlags registers the flags shared by every binary and binds them into v.
// Flags win over RPS_* variables, which win over the config file.
func AddFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()
	f.String(flagConfig, "", "config file (toml, yaml or json)")
	f.String("home", DefaultHome, "home directory")
	f.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	f.Bool("log-json", false, "log as JSON")
	f.String("node", DefaultNodeRPC, "CometBFT RPC endpoint")
	f.String("gateway", DefaultGatewayURL, "decryption gateway URL")

	_ = v.BindPFlag("home", f.Lookup("home"))
	_ = v.BindPFlag("log-level", f.Lookup("log-level"))
	_ = v.BindPFlag("log-json", f.Lookup("log-json"))
	_ = v.BindPFlag("node.rpc", f.Lookup("node"))
	_ = v.BindPFlag("gateway.url", f.Lookup("gateway"))
}

// FromCommand loads the config named by --config.
func FromCommand(cmd *cobra.Command, v *viper.Viper) (*Config, error) {
	file, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, err
	}
	return Load(v, file)
}
