// Package natsd runs an in-process NATS server for single node deployments
// where no external broker is available.
package natsd

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

const readyTimeout = 10 * time.Second

type Config struct {
	Host       string
	Port       int
	ConfigFile string
	Debug      bool
	// Token is required from clients when set.
	Token string
}

// Start launches the server and returns once it accepts connections. A
// config file, when given, replaces every other option except Token.
func Start(cfg Config) (*server.Server, error) {
	var opts *server.Options

	if cfg.ConfigFile != "" {
		var err error
		opts, err = server.ProcessConfigFile(cfg.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to process NATS config file: %w", err)
		}
	} else {
		opts = &server.Options{
			Host:  cfg.Host,
			Port:  cfg.Port,
			Debug: cfg.Debug,
		}
		if opts.Port == 0 {
			opts.Port = 4222
		}
		if opts.Host == "" {
			opts.Host = "127.0.0.1"
		}
	}
	opts.NoSigs = true
	if cfg.Token != "" {
		opts.Authorization = cfg.Token
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}
	ns.ConfigureLogger()

	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS server not ready for connections")
	}

	slog.Info("Embedded NATS server started", "url", ns.ClientURL())
	return ns, nil
}

// Stop shuts the server down and waits for it to exit.
func Stop(ns *server.Server) {
	if ns == nil {
		return
	}
	ns.Shutdown()
	ns.WaitForShutdown()
	slog.Info("Embedded NATS server stopped")
}
