package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mulgadc/vmsched/vmsched/config"
	"github.com/mulgadc/vmsched/vmsched/directory"
	"github.com/mulgadc/vmsched/vmsched/gateway"
	"github.com/mulgadc/vmsched/vmsched/lifecycle"
	"github.com/mulgadc/vmsched/vmsched/natsd"
	"github.com/mulgadc/vmsched/vmsched/schedule"
	"github.com/mulgadc/vmsched/vmsched/utils"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/automaxprocs/maxprocs"
)

const pushShutdownTimeout = 10 * time.Second

// Daemon wires the start and stop handlers to their triggers: a NATS queue
// subscription per action and, optionally, the HTTP push gateway.
type Daemon struct {
	config   *config.Config
	dir      directory.Directory
	handlers map[directory.Action]*lifecycle.Handler
	registry *prometheus.Registry

	natsServer        *server.Server
	natsConn          *nats.Conn
	natsSubscriptions map[string]*nats.Subscription

	app      *fiber.App
	pushAddr net.Addr

	// ctx is handed to invocations; cancelled only after they have drained.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	shuttingDown bool
	handling     sync.WaitGroup
	ready        chan struct{}
}

// NewDaemon creates a daemon that drives dir. The daemon owns dir and closes
// it on shutdown.
func NewDaemon(cfg *config.Config, dir directory.Directory) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := lifecycle.NewMetrics(registry)

	opts := []lifecycle.Option{
		lifecycle.WithMetrics(metrics),
		lifecycle.WithAwait(cfg.Handler.Await),
		lifecycle.WithActionTimeout(cfg.Handler.ActionTimeout),
	}

	return &Daemon{
		config: cfg,
		dir:    dir,
		handlers: map[directory.Action]*lifecycle.Handler{
			directory.ActionStart: lifecycle.NewStartHandler(dir, opts...),
			directory.ActionStop:  lifecycle.NewStopHandler(dir, opts...),
		},
		registry:          registry,
		natsSubscriptions: make(map[string]*nats.Subscription),
		ctx:               ctx,
		cancel:            cancel,
		ready:             make(chan struct{}),
	}
}

// Start runs the daemon until SIGINT or SIGTERM.
func (d *Daemon) Start() error {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		slog.Info(fmt.Sprintf(format, args...))
	})); err != nil {
		slog.Warn("Failed to set GOMAXPROCS", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal, cleaning up...", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return d.Run(ctx)
}

// Run connects the triggers, serves until ctx is done, then shuts down.
func (d *Daemon) Run(ctx context.Context) error {
	var err error

	natsHost := d.config.NATS.Host
	if embedded := d.config.NATS.Embedded; embedded.Enabled {
		d.natsServer, err = natsd.Start(natsd.Config{
			Host:       embedded.Host,
			Port:       embedded.Port,
			ConfigFile: embedded.ConfigFile,
			Token:      d.config.NATS.ACL.Token,
		})
		if err != nil {
			d.closeDirectory()
			return err
		}
		natsHost = d.natsServer.ClientURL()
	}

	d.natsConn, err = utils.ConnectNATS(natsHost, d.config.NATS.ACL.Token)
	if err != nil {
		natsd.Stop(d.natsServer)
		d.closeDirectory()
		return err
	}
	slog.Info("Connected to NATS server", "host", natsHost)

	if err := d.subscribe(); err != nil {
		d.Shutdown()
		return err
	}

	if d.config.Push.Enabled {
		if err := d.startPush(); err != nil {
			d.Shutdown()
			return err
		}
	}

	close(d.ready)
	slog.Info("vmsched daemon ready", "provider", d.config.Provider, "await", d.config.Handler.Await)

	<-ctx.Done()
	d.Shutdown()
	return nil
}

// Ready is closed once the daemon is subscribed and serving.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// PushAddr returns the bound push listener address, or nil when push is off.
func (d *Daemon) PushAddr() net.Addr {
	return d.pushAddr
}

// NATSURL returns the URL of the connected NATS server.
func (d *Daemon) NATSURL() string {
	if d.natsConn == nil {
		return ""
	}
	return d.natsConn.ConnectedUrl()
}

// Registry exposes the daemon's metric registry.
func (d *Daemon) Registry() *prometheus.Registry {
	return d.registry
}

func (d *Daemon) subscribe() error {
	subjects := map[directory.Action]string{
		directory.ActionStart: d.config.NATS.Sub.Start,
		directory.ActionStop:  d.config.NATS.Sub.Stop,
	}

	for action, subject := range subjects {
		if subject == "" {
			return fmt.Errorf("no NATS subject configured for %s", action)
		}

		slog.Info("Subscribing to subject", "subject", subject, "queue", d.config.NATS.Sub.Queue)
		sub, err := d.natsConn.QueueSubscribe(subject, d.config.NATS.Sub.Queue, d.handleSchedule(d.handlers[action]))
		if err != nil {
			return fmt.Errorf("failed to subscribe to NATS %s: %w", subject, err)
		}
		d.natsSubscriptions[subject] = sub
	}

	return d.natsConn.Flush()
}

func (d *Daemon) startPush() error {
	gw := &gateway.GatewayConfig{
		Handlers:    d.handlers,
		Token:       d.config.Push.Token,
		Gatherer:    d.registry,
		BaseContext: func() context.Context { return d.ctx },
	}
	d.app = gw.SetupRoutes()

	ln, err := net.Listen("tcp", d.config.Push.Host)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.config.Push.Host, err)
	}
	d.pushAddr = ln.Addr()

	go func() {
		if err := d.app.Listener(ln); err != nil {
			slog.Error("Push server stopped", "error", err)
		}
	}()

	slog.Info("Push endpoint listening", "addr", d.pushAddr.String())
	return nil
}

// handleSchedule runs each delivery on its own goroutine so a long running
// invocation does not hold up the subscription. The report is sent back when
// the message carries a reply subject.
func (d *Daemon) handleSchedule(h *lifecycle.Handler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		d.mu.Lock()
		if d.shuttingDown {
			d.mu.Unlock()
			slog.Warn("Rejecting schedule message during shutdown", "subject", msg.Subject)
			if msg.Reply != "" {
				if err := msg.Respond(utils.GenerateErrorPayload("ServiceUnavailable")); err != nil {
					slog.Error("Failed to respond to NATS request", "err", err)
				}
			}
			return
		}
		d.handling.Add(1)
		d.mu.Unlock()

		ev := DecodeEvent(msg.Data)
		go func() {
			defer d.handling.Done()
			report := h.Handle(d.ctx, ev)
			utils.RespondJSON(msg, report)
		}()
	}
}

// DecodeEvent reads a JSON schedule.Event from a message body. A body that
// is not an event envelope is taken as the event data itself.
func DecodeEvent(body []byte) schedule.Event {
	var ev schedule.Event
	if err := json.Unmarshal(body, &ev); err == nil && ev.Data != "" {
		return ev
	}
	return schedule.Event{Data: string(bytes.TrimSpace(body))}
}

// Shutdown stops accepting work, waits for in-flight invocations and
// detached actions, then releases NATS and the directory. Safe to call more
// than once.
func (d *Daemon) Shutdown() {
	d.mu.Lock()
	if d.shuttingDown {
		d.mu.Unlock()
		return
	}
	d.shuttingDown = true
	d.mu.Unlock()

	for subject, sub := range d.natsSubscriptions {
		slog.Info("Unsubscribing from NATS", "subject", subject)
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("Error unsubscribing from NATS", "subject", subject, "error", err)
		}
	}

	if d.app != nil {
		if err := d.app.ShutdownWithTimeout(pushShutdownTimeout); err != nil {
			slog.Error("Failed to shut down push server", "error", err)
		}
	}

	d.handling.Wait()
	for action, h := range d.handlers {
		slog.Info("Waiting for in-flight actions", "action", string(action))
		h.Wait()
	}
	d.cancel()

	if d.natsConn != nil {
		d.natsConn.Close()
	}
	natsd.Stop(d.natsServer)
	d.closeDirectory()

	slog.Info("Shutdown complete")
}

func (d *Daemon) closeDirectory() {
	if d.dir == nil {
		return
	}
	if err := d.dir.Close(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Failed to close directory client", "error", err)
	}
}
