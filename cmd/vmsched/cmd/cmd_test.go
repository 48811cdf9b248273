package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mulgadc/vmsched/vmsched/directory"
	"github.com/mulgadc/vmsched/vmsched/lifecycle"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReport(t *testing.T) {
	pterm.DisableStyling()
	t.Cleanup(pterm.EnableStyling)

	var buf bytes.Buffer
	err := renderReport(&buf, lifecycle.Report{
		InvocationID: "inv-1",
		Action:       directory.ActionStart,
		Zone:         "us-central1-a",
		Label:        "env-prod",
		Matched:      2,
		Skipped:      1,
		Dispatched:   []string{"vm-1", "vm-bad"},
		Succeeded:    []string{"vm-1"},
		Failed:       map[string]string{"vm-bad": "quota exceeded"},
		Completed:    true,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "INSTANCE")
	assert.Contains(t, out, "vm-1")
	assert.Contains(t, out, "started")
	assert.Contains(t, out, "quota exceeded")
	assert.Contains(t, out, "2 matched, 1 skipped, 1 succeeded, 1 failed")
}

func TestRenderReport_ErrorAndEmpty(t *testing.T) {
	pterm.DisableStyling()
	t.Cleanup(pterm.EnableStyling)

	var buf bytes.Buffer
	require.NoError(t, renderReport(&buf, lifecycle.Report{Error: "Attribute 'zone' missing from payload"}))
	assert.Contains(t, buf.String(), "Attribute 'zone' missing from payload")

	buf.Reset()
	require.NoError(t, renderReport(&buf, lifecycle.Report{Zone: "us-central1-a", Label: "env-prod", Skipped: 3}))
	assert.Contains(t, buf.String(), "No instances with label")
	assert.Contains(t, buf.String(), "3 in other zones")
}

func TestActionArg(t *testing.T) {
	assert.NoError(t, actionArg(invokeCmd, []string{"start"}))
	assert.NoError(t, actionArg(invokeCmd, []string{"STOP"}))
	assert.Error(t, actionArg(invokeCmd, []string{"reboot"}))
	assert.Error(t, actionArg(invokeCmd, nil))
}

// Commands share global cobra and viper state, so the end-to-end flow runs as
// one sequence.
func TestCLI_ConfigInitAndInvoke(t *testing.T) {
	pterm.DisableStyling()
	t.Cleanup(pterm.EnableStyling)
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	initPath := filepath.Join(dir, "init", "vmsched.toml")
	rootCmd.SetArgs([]string{"config", "init", initPath, "--project", "demo-project"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Wrote "+initPath)

	written, err := os.ReadFile(initPath)
	require.NoError(t, err)
	assert.Contains(t, string(written), "demo-project")
	assert.Contains(t, string(written), "vmsched.start")

	memPath := filepath.Join(dir, "memory.toml")
	require.NoError(t, os.WriteFile(memPath, []byte(`
provider = "memory"

[[memory.instances]]
name = "vm-1"
zone = "us-central1-a"
labels = { env-prod = "" }

[[memory.instances]]
name = "vm-2"
zone = "us-central1-b"
labels = { env-prod = "" }
`), 0600))

	out.Reset()
	rootCmd.SetArgs([]string{"--config", memPath, "invoke", "start", "--zone", "us-central1-a", "--label", "env-prod"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "vm-1")
	assert.Contains(t, out.String(), "started")
	assert.NotContains(t, out.String(), "vm-2")
	assert.Contains(t, out.String(), "1 matched, 1 skipped")
}
