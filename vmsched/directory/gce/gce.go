package directory_gce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	compute "cloud.google.com/go/compute/apiv1"
	computepb "cloud.google.com/go/compute/apiv1/computepb"
	"github.com/mulgadc/vmsched/vmsched/directory"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/proto"
)

// Compute Engine label rules; anything outside them would need escaping in a
// list filter, so it is rejected instead.
var (
	labelKeyPattern   = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)
	labelValuePattern = regexp.MustCompile(`^[a-z0-9_-]{0,63}$`)
)

// Config selects the project and credentials for the Compute Engine client.
type Config struct {
	Project         string
	CredentialsFile string
	Endpoint        string
}

// Client implements directory.Directory for Google Compute Engine
type Client struct {
	client  *compute.InstancesClient
	project string
}

var _ directory.Directory = (*Client)(nil)

// NewClient creates a Compute Engine REST client. Extra options are appended
// after the ones derived from cfg.
func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.Project == "" {
		return nil, errors.New("gce project is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		slog.Info("Initializing GCE client with credentials file", "path", cfg.CredentialsFile)
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}
	clientOpts = append(clientOpts, opts...)

	client, err := compute.NewInstancesRESTClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCE client: %w", err)
	}
	slog.Info("Initialized GCE client", "project", cfg.Project)

	return &Client{client: client, project: cfg.Project}, nil
}

// Filter builds the aggregated-list filter for a label. "key" matches any
// instance carrying the key; "key=value" matches the exact value.
func Filter(label string) (string, error) {
	sel, err := directory.ParseLabel(label)
	if err != nil {
		return "", err
	}
	if !labelKeyPattern.MatchString(sel.Key) {
		return "", fmt.Errorf("%w: gce label key %q", directory.ErrInvalidLabel, sel.Key)
	}
	if !sel.HasValue {
		return fmt.Sprintf("labels.%s:*", sel.Key), nil
	}
	if !labelValuePattern.MatchString(sel.Value) {
		return "", fmt.Errorf("%w: gce label value %q", directory.ErrInvalidLabel, sel.Value)
	}
	return fmt.Sprintf(`labels.%s = "%s"`, sel.Key, sel.Value), nil
}

// ZoneID returns the bare zone name from a zone URL or "zones/<name>" scope key.
func ZoneID(zone string) string {
	zone = strings.TrimSuffix(zone, "/")
	if zone == "" {
		return ""
	}
	return path.Base(zone)
}

// Instances lists every instance in the project carrying label.
func (g *Client) Instances(ctx context.Context, label string) ([]directory.Instance, error) {
	filter, err := Filter(label)
	if err != nil {
		return nil, err
	}

	it := g.client.AggregatedList(ctx, &computepb.AggregatedListInstancesRequest{
		Project: g.project,
		Filter:  proto.String(filter),
	})

	var instances []directory.Instance
	for {
		pair, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing instances: %w", err)
		}

		for _, inst := range pair.Value.GetInstances() {
			zone := inst.GetZone()
			if zone == "" {
				zone = pair.Key
			}
			instances = append(instances, directory.Instance{
				Name: inst.GetName(),
				Zone: ZoneID(zone),
			})
		}
	}

	return instances, nil
}

// Start starts an instance
func (g *Client) Start(ctx context.Context, zone, name string) (directory.Operation, error) {
	op, err := g.client.Start(ctx, &computepb.StartInstanceRequest{
		Instance: name,
		Project:  g.project,
		Zone:     zone,
	})
	if err != nil {
		return nil, fmt.Errorf("starting instance: %w", err)
	}
	return &operation{op: op}, nil
}

// Stop stops an instance
func (g *Client) Stop(ctx context.Context, zone, name string) (directory.Operation, error) {
	op, err := g.client.Stop(ctx, &computepb.StopInstanceRequest{
		Instance: name,
		Project:  g.project,
		Zone:     zone,
	})
	if err != nil {
		return nil, fmt.Errorf("stopping instance: %w", err)
	}
	return &operation{op: op}, nil
}

func (g *Client) Close() error {
	return g.client.Close()
}

type operation struct {
	op *compute.Operation
}

// Wait polls the zonal operation until DONE and surfaces any errors recorded
// on it.
func (o *operation) Wait(ctx context.Context) error {
	if err := o.op.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for operation %s: %w", o.op.Name(), err)
	}

	opErr := o.op.Proto().GetError()
	if opErr == nil || len(opErr.GetErrors()) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(opErr.GetErrors()))
	for _, e := range opErr.GetErrors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.GetCode(), e.GetMessage()))
	}
	return fmt.Errorf("operation %s failed: %s", o.op.Name(), strings.Join(msgs, "; "))
}
