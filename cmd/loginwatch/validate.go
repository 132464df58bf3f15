package main

import (
	"fmt"

	"github.com/HerbHall/loginwatch/internal/config"
	"github.com/HerbHall/loginwatch/internal/pulse"
	"github.com/HerbHall/loginwatch/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration without probing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		v, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg, err := checkConfig(v)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if f := v.ConfigFileUsed(); f != "" {
			fmt.Fprintf(out, "config file: %s\n", f)
		}
		fmt.Fprintf(out, "configuration OK: %d endpoint(s), state %s at %s\n",
			len(cfg.Endpoints), v.GetString("state.backend"), v.GetString("state.path"))
		return nil
	},
}

// checkConfig decodes and validates everything a run needs.
func checkConfig(v *viper.Viper) (pulse.Config, error) {
	cfg, err := config.Decode(v)
	if err != nil {
		return pulse.Config{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return pulse.Config{}, err
	}
	switch backend := v.GetString("state.backend"); backend {
	case store.BackendFile, store.BackendSQLite:
	default:
		return pulse.Config{}, fmt.Errorf("state.backend %q must be %q or %q", backend, store.BackendFile, store.BackendSQLite)
	}
	return cfg, nil
}
