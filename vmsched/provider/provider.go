// Package provider builds the compute directory selected by configuration.
package provider

import (
	"context"
	"fmt"

	"github.com/mulgadc/vmsched/vmsched/config"
	"github.com/mulgadc/vmsched/vmsched/directory"
	directory_ec2 "github.com/mulgadc/vmsched/vmsched/directory/ec2"
	directory_gce "github.com/mulgadc/vmsched/vmsched/directory/gce"
	directory_memory "github.com/mulgadc/vmsched/vmsched/directory/memory"
	"google.golang.org/api/option"
)

// New returns the directory for cfg.Provider. The caller owns the result and
// must Close it. GCE options are passed through to the Compute client.
func New(ctx context.Context, cfg *config.Config, gceOpts ...option.ClientOption) (directory.Directory, error) {
	switch cfg.Provider {
	case config.ProviderGCE:
		client, err := directory_gce.NewClient(ctx, directory_gce.Config{
			Project:         cfg.GCE.Project,
			CredentialsFile: cfg.GCE.CredentialsFile,
			Endpoint:        cfg.GCE.Endpoint,
		}, gceOpts...)
		if err != nil {
			return nil, err
		}
		return client, nil

	case config.ProviderEC2:
		client, err := directory_ec2.NewClient(directory_ec2.Config{
			Region:          cfg.EC2.Region,
			Endpoint:        cfg.EC2.Endpoint,
			AccessKey:       cfg.EC2.AccessKey,
			SecretKey:       cfg.EC2.SecretKey,
			CredentialsFile: cfg.EC2.CredentialsFile,
			Profile:         cfg.EC2.Profile,
		})
		if err != nil {
			return nil, err
		}
		return client, nil

	case config.ProviderMemory:
		instances := make([]directory_memory.Instance, 0, len(cfg.Memory.Instances))
		for _, inst := range cfg.Memory.Instances {
			instances = append(instances, directory_memory.Instance{
				Name:   inst.Name,
				Zone:   inst.Zone,
				Labels: inst.Labels,
				Status: inst.Status,
			})
		}
		return directory_memory.New(instances...), nil
	}

	return nil, fmt.Errorf("unknown provider: %q", cfg.Provider)
}
