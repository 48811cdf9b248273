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

	"github.com/mulgadc/vmsched/vmsched/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the vmsched configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Long:  `Write a default TOML configuration to path, or to $HOME/vmsched/config/vmsched.toml.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultConfigPath()
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no config path given and home directory unknown")
		}

		cfg := config.Default()
		if p, _ := cmd.Flags().GetString("provider"); p != "" {
			cfg.Provider = p
		}
		if project, _ := cmd.Flags().GetString("project"); project != "" {
			cfg.GCE.Project = project
		}
		if region, _ := cmd.Flags().GetString("region"); region != "" {
			cfg.EC2.Region = region
		}

		force, _ := cmd.Flags().GetBool("force")
		if err := config.WriteDefault(path, cfg, force); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configInitCmd.Flags().String("project", "", "GCE project to write into the file")
	configInitCmd.Flags().String("region", "", "EC2 region to write into the file")
}
