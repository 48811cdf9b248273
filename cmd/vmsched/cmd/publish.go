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
	"encoding/json"
	"fmt"
	"time"

	"github.com/mulgadc/vmsched/vmsched/directory"
	"github.com/mulgadc/vmsched/vmsched/lifecycle"
	"github.com/mulgadc/vmsched/vmsched/utils"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish start|stop",
	Short: "Publish a schedule message to the daemon over NATS",
	Long: `Publish a start or stop schedule message on the configured NATS subject.
With --wait the command waits for the daemon's report and prints it.`,
	Args:      actionArg,
	ValidArgs: []string{string(directory.ActionStart), string(directory.ActionStop)},
	RunE:      runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	addScheduleFlags(publishCmd)
	publishCmd.Flags().Bool("wait", false, "Wait for the invocation report")
	publishCmd.Flags().Duration("timeout", 5*time.Minute, "How long to wait for the report")
}

func runPublish(cmd *cobra.Command, args []string) error {
	if appConfig == nil {
		return fmt.Errorf("configuration not loaded")
	}

	action, _ := directory.ParseAction(args[0])
	subject := appConfig.NATS.Sub.Start
	if action == directory.ActionStop {
		subject = appConfig.NATS.Sub.Stop
	}

	ev, err := scheduleEvent(cmd)
	if err != nil {
		return err
	}

	nc, err := utils.ConnectNATS(appConfig.NATS.Host, appConfig.NATS.ACL.Token)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	wait, _ := cmd.Flags().GetBool("wait")
	if !wait {
		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		if err := nc.Publish(subject, body); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
		if err := nc.Flush(); err != nil {
			return fmt.Errorf("failed to flush NATS connection: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Published %s schedule to %s\n", action, subject)
		return nil
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	report, err := utils.NATSRequest[lifecycle.Report](nc, subject, ev, timeout)
	if err != nil {
		return fmt.Errorf("no report from %s: %w", subject, err)
	}
	return renderReport(cmd.OutOrStdout(), *report)
}
