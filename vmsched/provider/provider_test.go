package provider

import (
	"context"
	"testing"

	"github.com/mulgadc/vmsched/vmsched/config"
	directory_ec2 "github.com/mulgadc/vmsched/vmsched/directory/ec2"
	directory_gce "github.com/mulgadc/vmsched/vmsched/directory/gce"
	directory_memory "github.com/mulgadc/vmsched/vmsched/directory/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNew_Memory(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = config.ProviderMemory
	cfg.Memory.Instances = []config.MemoryInstance{
		{Name: "vm-1", Zone: "us-central1-a", Labels: map[string]string{"env-prod": ""}},
	}

	dir, err := New(context.Background(), &cfg)
	require.NoError(t, err)
	defer dir.Close()

	require.IsType(t, &directory_memory.Directory{}, dir)
	instances, err := dir.Instances(context.Background(), "env-prod")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "vm-1", instances[0].Name)
}

func TestNew_GCE(t *testing.T) {
	cfg := config.Default()
	cfg.GCE.Project = "test-project"
	cfg.GCE.Endpoint = "http://127.0.0.1:1"

	dir, err := New(context.Background(), &cfg, option.WithoutAuthentication())
	require.NoError(t, err)
	defer dir.Close()
	assert.IsType(t, &directory_gce.Client{}, dir)
}

func TestNew_EC2(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = config.ProviderEC2
	cfg.EC2.Region = "us-east-1"
	cfg.EC2.AccessKey = "AKIA"
	cfg.EC2.SecretKey = "SECRET"

	dir, err := New(context.Background(), &cfg)
	require.NoError(t, err)
	defer dir.Close()
	assert.IsType(t, &directory_ec2.Client{}, dir)
}

func TestNew_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = "azure"
	_, err := New(context.Background(), &cfg)
	assert.Error(t, err)

	cfg = config.Default()
	_, err = New(context.Background(), &cfg, option.WithoutAuthentication())
	assert.Error(t, err, "gce without project")
}
