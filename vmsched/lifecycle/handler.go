// Package lifecycle runs a schedule invocation: it selects the instances a
// message targets and starts or stops each of them.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mulgadc/vmsched/vmsched/directory"
	"github.com/mulgadc/vmsched/vmsched/schedule"
)

// Report summarises one invocation.
type Report struct {
	InvocationID string            `json:"invocation_id"`
	Action       directory.Action  `json:"action"`
	Zone         string            `json:"zone,omitempty"`
	Label        string            `json:"label,omitempty"`
	Matched      int               `json:"matched"`
	Skipped      int               `json:"skipped"`
	Dispatched   []string          `json:"dispatched,omitempty"`
	Succeeded    []string          `json:"succeeded,omitempty"`
	Failed       map[string]string `json:"failed,omitempty"`
	Error        string            `json:"error,omitempty"`
	// Completed is false when actions were dispatched without awaiting them.
	Completed bool `json:"completed"`
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithAwait controls whether Handle joins the per-instance actions before
// returning. With await off, actions outlive the invocation context and only
// Wait observes them.
func WithAwait(await bool) Option {
	return func(h *Handler) { h.await = await }
}

// WithActionTimeout bounds each start/stop including its wait. Zero disables
// the bound.
func WithActionTimeout(d time.Duration) Option {
	return func(h *Handler) { h.actionTimeout = d }
}

// Handler applies one lifecycle action to every instance a schedule message
// selects.
type Handler struct {
	action        directory.Action
	dir           directory.Directory
	logger        *slog.Logger
	metrics       *Metrics
	await         bool
	actionTimeout time.Duration

	inflight sync.WaitGroup
}

func NewStartHandler(dir directory.Directory, opts ...Option) *Handler {
	return NewHandler(directory.ActionStart, dir, opts...)
}

func NewStopHandler(dir directory.Directory, opts ...Option) *Handler {
	return NewHandler(directory.ActionStop, dir, opts...)
}

// NewHandler builds a handler for action. Handlers await their actions unless
// WithAwait(false) is given.
func NewHandler(action directory.Action, dir directory.Directory, opts ...Option) *Handler {
	h := &Handler{
		action: action,
		dir:    dir,
		logger: slog.Default(),
		await:  true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Action() directory.Action {
	return h.action
}

// Handle is the invocation entry point. It never fails: decode, validation,
// listing and per-instance errors are logged and recorded on the report.
func (h *Handler) Handle(ctx context.Context, ev schedule.Event) Report {
	id := uuid.NewString()
	logger := h.logger.With("invocation", id, "action", string(h.action))
	report := Report{InvocationID: id, Action: h.action}

	msg, err := schedule.Parse(ev)
	if err != nil {
		logger.Error("Rejected schedule event", "error", err)
		report.Error = err.Error()
		h.metrics.invocation(h.action, ResultInvalid)
		return report
	}

	report, err = h.process(ctx, id, logger, msg)
	if err != nil {
		logger.Error("Failed to list instances", "label", msg.Label, "zone", msg.Zone, "error", err)
		report.Error = err.Error()
		h.metrics.invocation(h.action, ResultError)
		return report
	}

	h.metrics.invocation(h.action, ResultOK)
	return report
}

// Process runs an already validated message. Only a failed listing is
// returned as an error; per-instance failures are on the report.
func (h *Handler) Process(ctx context.Context, msg schedule.Message) (Report, error) {
	id := uuid.NewString()
	return h.process(ctx, id, h.logger.With("invocation", id, "action", string(h.action)), msg)
}

// Wait blocks until every action dispatched by this handler has finished.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

func (h *Handler) process(ctx context.Context, id string, logger *slog.Logger, msg schedule.Message) (Report, error) {
	report := Report{
		InvocationID: id,
		Action:       h.action,
		Zone:         msg.Zone,
		Label:        msg.Label,
	}

	instances, err := h.dir.Instances(ctx, msg.Label)
	if err != nil {
		return report, &DirectoryQueryError{Label: msg.Label, Err: err}
	}

	var targets []directory.Instance
	for _, inst := range instances {
		if inst.Zone != msg.Zone {
			report.Skipped++
			continue
		}
		targets = append(targets, inst)
	}
	report.Matched = len(targets)

	logger.Debug("Selected instances", "label", msg.Label, "zone", msg.Zone,
		"matched", report.Matched, "skipped", report.Skipped)

	for _, inst := range targets {
		report.Dispatched = append(report.Dispatched, inst.Name)
	}

	if !h.await {
		detached := context.WithoutCancel(ctx)
		for _, inst := range targets {
			h.inflight.Add(1)
			go func() {
				defer h.inflight.Done()
				h.apply(detached, logger, inst)
			}()
		}
		report.Completed = len(targets) == 0
		return report, nil
	}

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, inst := range targets {
		wg.Add(1)
		h.inflight.Add(1)
		go func() {
			defer h.inflight.Done()
			defer wg.Done()
			errs[i] = h.apply(ctx, logger, inst)
		}()
	}
	wg.Wait()

	for i, inst := range targets {
		if errs[i] == nil {
			report.Succeeded = append(report.Succeeded, inst.Name)
			continue
		}
		if report.Failed == nil {
			report.Failed = make(map[string]string)
		}
		report.Failed[inst.Name] = errs[i].Error()
	}
	report.Completed = true

	return report, nil
}

// apply issues the action against one instance and waits for its operation.
func (h *Handler) apply(ctx context.Context, logger *slog.Logger, inst directory.Instance) error {
	if h.actionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.actionTimeout)
		defer cancel()
	}

	started := time.Now()
	err := h.run(ctx, inst)
	h.metrics.action(h.action, err, time.Since(started))

	if err != nil {
		actionErr := &LifecycleActionError{Action: h.action, Instance: inst.Name, Zone: inst.Zone, Err: err}
		logger.Error(fmt.Sprintf("Failed to %s instance %s", h.action, inst.Name), "zone", inst.Zone, "error", err)
		return actionErr
	}

	logger.Info(fmt.Sprintf("Successfully %s instance %s", h.action.Past(), inst.Name), "zone", inst.Zone)
	return nil
}

func (h *Handler) run(ctx context.Context, inst directory.Instance) error {
	op, err := directory.Apply(ctx, h.dir, h.action, inst.Zone, inst.Name)
	if err != nil {
		return err
	}
	if op == nil {
		return nil
	}
	return op.Wait(ctx)
}
