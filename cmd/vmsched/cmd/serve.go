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
	"log/slog"

	"github.com/mulgadc/vmsched/vmsched/daemon"
	"github.com/mulgadc/vmsched/vmsched/provider"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vmsched daemon",
	Long: `Run the vmsched daemon. It subscribes to the start and stop subjects on
NATS in a shared queue group and, when enabled, serves the HTTP push endpoint.
With --embedded-nats the daemon hosts its own NATS server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig == nil {
			return fmt.Errorf("configuration not loaded")
		}
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		dir, err := provider.New(cmd.Context(), appConfig)
		if err != nil {
			return fmt.Errorf("failed to create %s directory: %w", appConfig.Provider, err)
		}

		d := daemon.NewDaemon(appConfig, dir)
		slog.Info("Starting vmsched daemon...", "provider", appConfig.Provider)
		return d.Start()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("push", false, "Enable the HTTP push endpoint")
	viper.BindPFlag("push.enabled", serveCmd.Flags().Lookup("push"))

	serveCmd.Flags().String("push-host", "", "HTTP push listen address (overrides config file and env)")
	viper.BindPFlag("push.host", serveCmd.Flags().Lookup("push-host"))

	serveCmd.Flags().Bool("embedded-nats", false, "Run an in-process NATS server instead of connecting to nats.host")
	viper.BindPFlag("nats.embedded.enabled", serveCmd.Flags().Lookup("embedded-nats"))

	serveCmd.Flags().Bool("await", true, "Wait for instance operations before acknowledging a schedule message")
	viper.BindPFlag("handler.await", serveCmd.Flags().Lookup("await"))
}
