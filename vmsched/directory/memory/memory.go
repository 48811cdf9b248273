// Package directory_memory is an in-process Directory used for dry runs and
// tests. Instance state changes are applied immediately; operations complete
// when waited on unless held or set to fail.
package directory_memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mulgadc/vmsched/vmsched/directory"
)

const (
	StatusRunning    = "RUNNING"
	StatusTerminated = "TERMINATED"
)

// Instance is a seeded instance with its labels.
type Instance struct {
	Name   string            `mapstructure:"name" toml:"name"`
	Zone   string            `mapstructure:"zone" toml:"zone"`
	Labels map[string]string `mapstructure:"labels" toml:"labels"`
	Status string            `mapstructure:"status" toml:"status"`
}

type Directory struct {
	mu        sync.Mutex
	instances []*Instance
	calls     []string
	failures  map[string]error
	listErr   error
	hold      chan struct{}
}

var _ directory.Directory = (*Directory)(nil)

func New(instances ...Instance) *Directory {
	d := &Directory{failures: make(map[string]error)}
	for i := range instances {
		inst := instances[i]
		if inst.Status == "" {
			inst.Status = StatusTerminated
		}
		d.instances = append(d.instances, &inst)
	}
	return d
}

// FailOn makes every operation on name fail with err.
func (d *Directory) FailOn(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[name] = err
}

// FailList makes Instances return err.
func (d *Directory) FailList(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listErr = err
}

// Hold blocks operation waits until the returned release func is called.
func (d *Directory) Hold() (release func()) {
	ch := make(chan struct{})
	d.mu.Lock()
	d.hold = ch
	d.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns the issued actions as "<action> <zone>/<name>", in order.
func (d *Directory) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Status returns the current status of an instance, or "" if unknown.
func (d *Directory) Status(zone, name string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if inst := d.find(zone, name); inst != nil {
		return inst.Status
	}
	return ""
}

func (d *Directory) Instances(ctx context.Context, label string) ([]directory.Instance, error) {
	sel, err := directory.ParseLabel(label)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.listErr != nil {
		return nil, d.listErr
	}

	var out []directory.Instance
	for _, inst := range d.instances {
		value, ok := inst.Labels[sel.Key]
		if !ok || (sel.HasValue && value != sel.Value) {
			continue
		}
		out = append(out, directory.Instance{Name: inst.Name, Zone: inst.Zone})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *Directory) Start(ctx context.Context, zone, name string) (directory.Operation, error) {
	return d.issue(directory.ActionStart, zone, name, StatusRunning)
}

func (d *Directory) Stop(ctx context.Context, zone, name string) (directory.Operation, error) {
	return d.issue(directory.ActionStop, zone, name, StatusTerminated)
}

func (d *Directory) Close() error {
	return nil
}

func (d *Directory) issue(action directory.Action, zone, name, target string) (directory.Operation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, fmt.Sprintf("%s %s/%s", action, zone, name))

	inst := d.find(zone, name)
	if inst == nil {
		return nil, fmt.Errorf("instance %s not found in zone %s", name, zone)
	}

	op := &operation{hold: d.hold, err: d.failures[name]}
	if op.err == nil {
		inst.Status = target
	}
	return op, nil
}

func (d *Directory) find(zone, name string) *Instance {
	for _, inst := range d.instances {
		if inst.Zone == zone && inst.Name == name {
			return inst
		}
	}
	return nil
}

type operation struct {
	hold chan struct{}
	err  error
}

func (o *operation) Wait(ctx context.Context) error {
	if o.hold != nil {
		select {
		case <-o.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return o.err
}
