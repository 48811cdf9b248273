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
	"time"

	"github.com/mulgadc/vmsched/vmsched/directory"
	"github.com/mulgadc/vmsched/vmsched/lifecycle"
	"github.com/mulgadc/vmsched/vmsched/provider"
	"github.com/spf13/cobra"
)

var invokeCmd = &cobra.Command{
	Use:       "invoke start|stop",
	Short:     "Run one schedule invocation locally",
	Long:      `Run the start or stop handler once against the configured provider and print the outcome per instance.`,
	Args:      actionArg,
	ValidArgs: []string{string(directory.ActionStart), string(directory.ActionStop)},
	RunE:      runInvoke,
}

func init() {
	rootCmd.AddCommand(invokeCmd)
	addScheduleFlags(invokeCmd)
	invokeCmd.Flags().Duration("action-timeout", 0, "Bound each start/stop including its wait (0 for none)")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	if appConfig == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	action, _ := directory.ParseAction(args[0])
	ev, err := scheduleEvent(cmd)
	if err != nil {
		return err
	}

	dir, err := provider.New(cmd.Context(), appConfig)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", appConfig.Provider, err)
	}
	defer dir.Close()

	timeout, _ := cmd.Flags().GetDuration("action-timeout")
	if timeout == 0 {
		timeout = appConfig.Handler.ActionTimeout
	}

	h := lifecycle.NewHandler(action, dir, lifecycle.WithActionTimeout(timeout))

	started := time.Now()
	report := h.Handle(cmd.Context(), ev)
	if err := renderReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Completed in %s\n", time.Since(started).Round(time.Millisecond))
	return nil
}
