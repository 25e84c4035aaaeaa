package main

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/srediag/ipmutex/pkg/ipmutex"
)

// initConfig loads .env files and maps IPMUTEX_* variables onto flags.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("ipmutex")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindFlags binds the flags of cmd, including inherited ones, to viper.
func bindFlags(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := viper.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}
	if viper.IsSet("log-level") {
		ipmutex.SetLogLevel(viper.GetInt("log-level"))
	}
	return nil
}

// lockConfig builds the library configuration from flags and environment.
func lockConfig() (*ipmutex.Config, error) {
	config := ipmutex.DefaultConfig()
	if dir := viper.GetString("shm-dir"); dir != "" {
		config.Dir = dir
	}
	if d := viper.GetDuration("probe-interval"); d > 0 {
		config.ProbeInterval = d
	}
	if viper.GetBool("skip-space-check") {
		config.CheckFreeSpace = false
	}
	if err := ipmutex.VerifyConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}
