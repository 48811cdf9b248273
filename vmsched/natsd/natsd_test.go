package natsd

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mulgadc/vmsched/vmsched/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_Options(t *testing.T) {
	ns, err := Start(Config{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	t.Cleanup(func() { Stop(ns) })

	nc, err := utils.ConnectNATS(ns.ClientURL(), "")
	require.NoError(t, err)
	defer nc.Close()
	assert.True(t, nc.IsConnected())
}

func TestStart_Token(t *testing.T) {
	ns, err := Start(Config{Host: "127.0.0.1", Port: -1, Token: "sched-token"})
	require.NoError(t, err)
	t.Cleanup(func() { Stop(ns) })

	_, err = utils.ConnectNATS(ns.ClientURL(), "")
	assert.Error(t, err)

	nc, err := utils.ConnectNATS(ns.ClientURL(), "sched-token")
	require.NoError(t, err)
	nc.Close()
}

func TestStart_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nats.conf")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("host: %q\nport: -1\n", "127.0.0.1")), 0600))

	ns, err := Start(Config{ConfigFile: path})
	require.NoError(t, err)
	t.Cleanup(func() { Stop(ns) })

	nc, err := utils.ConnectNATS(ns.ClientURL(), "")
	require.NoError(t, err)
	nc.Close()
}

func TestStart_BadConfigFile(t *testing.T) {
	_, err := Start(Config{ConfigFile: filepath.Join(t.TempDir(), "missing.conf")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process NATS config file")
}

func TestStop_Nil(t *testing.T) {
	assert.NotPanics(t, func() { Stop(nil) })
}
