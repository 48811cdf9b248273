package directory_ec2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/mulgadc/vmsched/vmsched/directory"
	"gopkg.in/ini.v1"
)

const (
	maxTagKeyLength   = 128
	maxTagValueLength = 256
)

// Terminated instances stay visible for a while after termination and can
// never be started again, so they are excluded from listings.
var listableStates = []string{"pending", "running", "stopping", "stopped"}

// Config selects the region, endpoint and credentials for the EC2 client.
type Config struct {
	Region          string
	Endpoint        string
	AccessKey       string
	SecretKey       string
	CredentialsFile string
	Profile         string
}

// Client implements directory.Directory for EC2 and EC2-compatible endpoints.
// Instances are addressed by instance id; the zone argument of Start and Stop
// is informational since ids are unique per region.
type Client struct {
	api ec2iface.EC2API
}

var _ directory.Directory = (*Client)(nil)

// NewClient builds an EC2 client from cfg. Static keys win over a credentials
// file; with neither, the SDK default chain applies.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Region == "" {
		return nil, errors.New("ec2 region is required")
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}

	switch {
	case cfg.AccessKey != "" && cfg.SecretKey != "":
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	case cfg.CredentialsFile != "":
		accessKey, secretKey, token, err := LoadCredentials(cfg.CredentialsFile, cfg.Profile)
		if err != nil {
			return nil, err
		}
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(accessKey, secretKey, token))
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	slog.Info("Initialized EC2 client", "region", cfg.Region, "endpoint", cfg.Endpoint)

	return NewClientWithAPI(ec2.New(sess)), nil
}

// NewClientWithAPI wraps an existing EC2 API implementation.
func NewClientWithAPI(api ec2iface.EC2API) *Client {
	return &Client{api: api}
}

// LoadCredentials reads a profile from an AWS shared credentials INI file.
func LoadCredentials(path, profile string) (accessKey, secretKey, sessionToken string, err error) {
	if profile == "" {
		profile = "default"
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to load credentials file: %w", err)
	}

	sec, err := cfg.GetSection(profile)
	if err != nil {
		return "", "", "", fmt.Errorf("profile %q not found in %s", profile, path)
	}

	accessKey = sec.Key("aws_access_key_id").String()
	secretKey = sec.Key("aws_secret_access_key").String()
	sessionToken = sec.Key("aws_session_token").String()
	if accessKey == "" || secretKey == "" {
		return "", "", "", fmt.Errorf("profile %q in %s has no access key pair", profile, path)
	}

	return accessKey, secretKey, sessionToken, nil
}

// Filters builds the DescribeInstances filters for a label: "key" becomes a
// tag-key filter, "key=value" a tag:key filter. Wildcard characters in values
// are escaped so they match literally.
func Filters(label string) ([]*ec2.Filter, error) {
	sel, err := directory.ParseLabel(label)
	if err != nil {
		return nil, err
	}
	if len(sel.Key) > maxTagKeyLength {
		return nil, fmt.Errorf("%w: tag key longer than %d characters", directory.ErrInvalidLabel, maxTagKeyLength)
	}
	if len(sel.Value) > maxTagValueLength {
		return nil, fmt.Errorf("%w: tag value longer than %d characters", directory.ErrInvalidLabel, maxTagValueLength)
	}

	stateFilter := &ec2.Filter{
		Name:   aws.String("instance-state-name"),
		Values: aws.StringSlice(listableStates),
	}

	if !sel.HasValue {
		return []*ec2.Filter{
			{Name: aws.String("tag-key"), Values: []*string{aws.String(escapeFilterValue(sel.Key))}},
			stateFilter,
		}, nil
	}

	return []*ec2.Filter{
		{Name: aws.String("tag:" + sel.Key), Values: []*string{aws.String(escapeFilterValue(sel.Value))}},
		stateFilter,
	}, nil
}

var filterEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeFilterValue(v string) string {
	return filterEscaper.Replace(v)
}

// Instances lists every non-terminated instance carrying label.
func (c *Client) Instances(ctx context.Context, label string) ([]directory.Instance, error) {
	filters, err := Filters(label)
	if err != nil {
		return nil, err
	}

	var instances []directory.Instance
	err = c.api.DescribeInstancesPagesWithContext(ctx, &ec2.DescribeInstancesInput{Filters: filters},
		func(page *ec2.DescribeInstancesOutput, lastPage bool) bool {
			for _, reservation := range page.Reservations {
				for _, inst := range reservation.Instances {
					if inst == nil || inst.InstanceId == nil {
						continue
					}
					zone := ""
					if inst.Placement != nil {
						zone = aws.StringValue(inst.Placement.AvailabilityZone)
					}
					instances = append(instances, directory.Instance{
						Name: aws.StringValue(inst.InstanceId),
						Zone: zone,
					})
				}
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("describing instances: %w", err)
	}

	return instances, nil
}

// Start starts an instance
func (c *Client) Start(ctx context.Context, zone, name string) (directory.Operation, error) {
	_, err := c.api.StartInstancesWithContext(ctx, &ec2.StartInstancesInput{
		InstanceIds: []*string{aws.String(name)},
	})
	if err != nil {
		return nil, fmt.Errorf("starting instance: %w", err)
	}
	return &operation{api: c.api, action: directory.ActionStart, instanceID: name}, nil
}

// Stop stops an instance
func (c *Client) Stop(ctx context.Context, zone, name string) (directory.Operation, error) {
	_, err := c.api.StopInstancesWithContext(ctx, &ec2.StopInstancesInput{
		InstanceIds: []*string{aws.String(name)},
	})
	if err != nil {
		return nil, fmt.Errorf("stopping instance: %w", err)
	}
	return &operation{api: c.api, action: directory.ActionStop, instanceID: name}, nil
}

func (c *Client) Close() error {
	return nil
}

// operation waits for the instance to reach the state the action targets.
type operation struct {
	api        ec2iface.EC2API
	action     directory.Action
	instanceID string
}

func (o *operation) Wait(ctx context.Context) error {
	input := &ec2.DescribeInstancesInput{InstanceIds: []*string{aws.String(o.instanceID)}}

	var err error
	switch o.action {
	case directory.ActionStart:
		err = o.api.WaitUntilInstanceRunningWithContext(ctx, input)
	case directory.ActionStop:
		err = o.api.WaitUntilInstanceStoppedWithContext(ctx, input)
	default:
		return fmt.Errorf("unsupported action: %q", o.action)
	}
	if err != nil {
		return fmt.Errorf("waiting for instance %s to be %s: %w", o.instanceID, o.action.Past(), err)
	}
	return nil
}
