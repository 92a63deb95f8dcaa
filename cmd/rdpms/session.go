package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/auditlog"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/engine"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/events"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/gateway"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/logging"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/setup"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/store"
)

// resolveHome returns the home directory and its configuration.
func resolveHome(opts *globalOptions) (string, model.Config, error) {
	home := opts.home
	if home == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", model.Config{}, fmt.Errorf("get cwd: %w", err)
		}
		if home, err = setup.FindHome(cwd); err != nil {
			return "", model.Config{}, err
		}
	}
	cfg, err := setup.LoadConfig(home)
	if err != nil {
		return "", model.Config{}, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	return home, cfg, nil
}

// session is one panel session: a fresh store and log wired to the executor.
type session struct {
	home   string
	config model.Config
	logger *logging.Logger
	bus    *events.Bus
	log    *auditlog.Log
	engine *engine.Engine

	mirror *auditlog.Mirror
}

func openSession(opts *globalOptions, stderr io.Writer) (*session, error) {
	home, cfg, err := resolveHome(opts)
	if err != nil {
		return nil, err
	}
	logger := logging.New(stderr, "rdpms", logging.ParseLevel(cfg.Logging.Level))

	s := &session{
		home:   home,
		config: cfg,
		logger: logger,
		bus:    events.NewBus(256),
	}

	logOpts := []auditlog.Option{auditlog.WithPublisher(s.bus)}
	if cfg.Audit.MirrorEnabled {
		path := setup.Resolve(home, cfg.Audit.MirrorPath)
		mirror, err := auditlog.NewMirror(path, model.NewSessionID(), cfg.Audit.MaxSizeBytes)
		if err != nil {
			// The mirror is optional; the session still runs without it.
			logger.Warnf("audit mirror disabled: %v", err)
		} else {
			mirror.EnableChecksum(cfg.Audit.Checksum)
			mirror.StartWriter(logger.With("mirror"))
			logger.Debugf("audit mirror %s (%d bytes)", mirror.Path(), mirror.CurrentSize())
			s.mirror = mirror
			logOpts = append(logOpts, auditlog.WithSink(mirror))
		}
	}

	s.log = auditlog.New(logOpts...)
	st := store.New(s.log, store.WithPublisher(s.bus))
	gw := gateway.NewUDS(setup.SocketPath(home, cfg), cfg.GatewayTimeout(), logger.With("gateway"))
	s.engine = engine.New(st, gw, logger.With("engine"))
	return s, nil
}

// load runs the status snapshot. Its outcome is already in the log.
func (s *session) load(ctx context.Context) {
	if err := s.engine.Load(ctx); err != nil {
		s.logger.Debugf("status load: %v", err)
	}
}

// Close drains pending notifications and flushes the mirror.
func (s *session) Close() {
	s.bus.Close()
	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil {
			s.logger.Warnf("close audit mirror: %v", err)
		}
	}
}

func printLog(w io.Writer, log *auditlog.Log) {
	if text := log.Export(); text != "" {
		fmt.Fprintln(w, text)
	}
}
