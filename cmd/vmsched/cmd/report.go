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
	"io"
	"slices"

	"github.com/mulgadc/vmsched/vmsched/directory"
	"github.com/mulgadc/vmsched/vmsched/lifecycle"
	"github.com/mulgadc/vmsched/vmsched/schedule"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// actionArg validates the start|stop positional argument.
func actionArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	_, err := directory.ParseAction(args[0])
	return err
}

// scheduleEvent builds the event from --data, or from --zone and --label.
func scheduleEvent(cmd *cobra.Command) (schedule.Event, error) {
	data, _ := cmd.Flags().GetString("data")
	if data != "" {
		return schedule.Event{Data: data}, nil
	}

	zone, _ := cmd.Flags().GetString("zone")
	label, _ := cmd.Flags().GetString("label")
	return schedule.Message{Zone: zone, Label: label}.Encode()
}

func addScheduleFlags(cmd *cobra.Command) {
	cmd.Flags().String("zone", "", "Zone the instances must be in")
	cmd.Flags().String("label", "", "Label selector: key or key=value")
	cmd.Flags().String("data", "", "Raw base64 event data (overrides --zone and --label)")
}

// renderReport prints one row per dispatched instance followed by a summary.
func renderReport(w io.Writer, report lifecycle.Report) error {
	if report.Error != "" {
		pterm.Error.WithWriter(w).Println(report.Error)
		return nil
	}

	if len(report.Dispatched) == 0 {
		pterm.Fprintln(w, fmt.Sprintf("No instances with label %q in zone %s (%d in other zones)",
			report.Label, report.Zone, report.Skipped))
		return nil
	}

	tableData := pterm.TableData{
		{"INSTANCE", "ZONE", "ACTION", "RESULT", "ERROR"},
	}
	for _, name := range report.Dispatched {
		result, errMsg := "dispatched", ""
		if slices.Contains(report.Succeeded, name) {
			result = report.Action.Past()
		} else if msg, ok := report.Failed[name]; ok {
			result, errMsg = "failed", msg
		}
		tableData = append(tableData, []string{name, report.Zone, string(report.Action), result, errMsg})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithLeftAlignment().WithWriter(w).WithData(tableData).Render(); err != nil {
		return err
	}

	pterm.Fprintln(w, fmt.Sprintf("Invocation %s: %d matched, %d skipped, %d succeeded, %d failed",
		report.InvocationID, report.Matched, report.Skipped, len(report.Succeeded), len(report.Failed)))
	return nil
}
