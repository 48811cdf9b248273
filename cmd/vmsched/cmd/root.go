/*
Copyright © 2025 Mulga Defense Corporation

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/mulgadc/vmsched/vmsched/config"
	"github.com/mulgadc/vmsched/vmsched/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	appConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vmsched",
	Short: "vmsched - scheduled start and stop of labelled instances",
	Long: `vmsched starts or stops every compute instance carrying a label in a
given zone. Schedules publish {"zone","label"} messages over NATS or an HTTP
push subscription; the daemon applies them through the configured provider.
It can be configured via config file, environment variables, or command line flags.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	viper.BindEnv("config", "VMSCHED_CONFIG_PATH")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().String("provider", "", "Compute provider: gce, ec2 or memory (overrides config file and env)")
	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))

	// NATS specific flags
	rootCmd.PersistentFlags().String("nats-host", "", "NATS server host (overrides config file and env)")
	viper.BindPFlag("nats.host", rootCmd.PersistentFlags().Lookup("nats-host"))

	rootCmd.PersistentFlags().String("nats-token", "", "NATS authentication token (overrides config file and env)")
	viper.BindPFlag("nats.acl.token", rootCmd.PersistentFlags().Lookup("nats-token"))

	// Logging
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error

	cfgPath := viper.GetString("config")
	if cfgPath == "" {
		cfgPath = defaultConfigPath()
	}

	// Load configuration
	appConfig, err = config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		fmt.Fprintln(os.Stderr, "Continuing with environment variables and defaults...")
		def := config.Default()
		appConfig = &def
	}

	if _, err := utils.SetupLogger(appConfig.Log.Level, appConfig.Log.Format, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using default logger\n", err)
	}
}

func defaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/vmsched/config/vmsched.toml", homeDir)
}
