package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/lock"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/logging"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/setup"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/uds"
)

// Per-resource keys for lock.MutexMap. Commands on one resource run one at a time.
const (
	resourcePatch       = "patch"
	resourcePersistence = "persistence"
	resourceExclusion   = "exclusion"
	resourceExport      = "export"
)

// scriptReloader is implemented by backends whose command lines can change at runtime.
type scriptReloader interface {
	SetScripts(model.ScriptsConfig)
}

// Executor is the privileged process serving panel commands.
type Executor struct {
	home    string
	config  model.Config
	logger  *logging.Logger
	logFile io.Closer

	fileLock *lock.FileLock
	server   *uds.Server
	watcher  *fsnotify.Watcher

	control SystemControl
	updates *UpdateChecker
	logs    *LogWriter
	lockMap *lock.MutexMap

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once
	done     chan struct{}
}

// New creates an Executor logging to <home>/logs/executor.log with the
// backend selected by cfg.
func New(home string, cfg model.Config) (*Executor, error) {
	logPath := filepath.Join(setup.LogDir(home), "executor.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open executor log: %w", err)
	}
	logger := logging.New(logFile, "executor", logging.ParseLevel(cfg.Logging.Level))

	control, err := NewControl(cfg.Executor, WithScriptLogger(logger.With("script")))
	if err != nil {
		logFile.Close()
		return nil, err
	}
	logs, err := NewLogWriter(afero.NewOsFs(), cfg.Export)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	return newExecutor(home, cfg, control, logs, logger, logFile), nil
}

// newExecutor is the internal constructor for testing.
func newExecutor(home string, cfg model.Config, control SystemControl, logs *LogWriter, logger *logging.Logger, closer io.Closer) *Executor {
	ctx, cancel := context.WithCancel(context.Background())

	server := uds.NewServer(setup.SocketPath(home, cfg), logger.With("uds"))
	server.SetConnTimeout(cfg.ExecutorTimeout() + 5*time.Second)

	return &Executor{
		home:     home,
		config:   cfg,
		logger:   logger,
		logFile:  closer,
		fileLock: lock.NewFileLock(setup.LockPath(home)),
		server:   server,
		control:  control,
		updates:  NewUpdateChecker(cfg.Updates.Mirrors, cfg.UpdatesTimeout(), logger.With("updates")),
		logs:     logs,
		lockMap:  lock.NewMutexMap(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (e *Executor) SocketPath() string {
	return setup.SocketPath(e.home, e.config)
}

// Run starts the executor and blocks until shutdown completes, either by
// signal or by the shutdown command.
func (e *Executor) Run() error {
	if err := e.Start(); err != nil {
		return err
	}
	e.waitSignals()
	return nil
}

// Start acquires the host lock and begins serving. Use Shutdown to stop.
func (e *Executor) Start() error {
	if err := os.MkdirAll(filepath.Dir(e.fileLock.Path()), 0755); err != nil {
		return fmt.Errorf("ensure lock dir: %w", err)
	}
	if err := e.fileLock.TryLock(); err != nil {
		return fmt.Errorf("executor lock: %w", err)
	}
	e.logger.Infof("executor starting pid=%d backend=%s", os.Getpid(), e.config.Executor.Backend)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		e.cleanup()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	e.watcher = watcher
	// Watch the directory: editors replace config.yaml by rename.
	if err := watcher.Add(e.home); err != nil {
		e.cleanup()
		return fmt.Errorf("watch %s: %w", e.home, err)
	}

	e.registerHandlers()

	if err := e.server.Start(); err != nil {
		e.cleanup()
		return fmt.Errorf("start UDS server: %w", err)
	}
	e.logger.Infof("UDS server listening on %s", e.SocketPath())

	e.wg.Add(1)
	go e.configLoop()

	e.logger.Infof("executor ready")
	return nil
}

// Done is closed once Shutdown has finished.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

func (e *Executor) registerHandlers() {
	e.server.Handle(model.CommandPing, func(ctx context.Context, req *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]string{"status": "ok"})
	})

	e.server.Handle(model.CommandShutdown, func(ctx context.Context, req *uds.Request) *uds.Response {
		e.logger.Infof("shutdown requested via UDS request_id=%s", req.RequestID)
		go e.Shutdown()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})

	e.server.Handle(model.CommandGetStatus, e.handleGetStatus)
	e.server.Handle(model.CommandPatchEnable, e.messageHandler(resourcePatch, func(ctx context.Context, req *uds.Request) (string, error) {
		return e.control.EnablePatch(ctx)
	}))
	e.server.Handle(model.CommandPatchRestore, e.messageHandler(resourcePatch, func(ctx context.Context, req *uds.Request) (string, error) {
		return e.control.RestorePatch(ctx)
	}))
	e.server.Handle(model.CommandSetPersistence, e.toggleHandler(resourcePersistence, e.control.SetPersistence))
	e.server.Handle(model.CommandSetExclusion, e.toggleHandler(resourceExclusion, e.control.SetExclusion))
	e.server.Handle(model.CommandCheckUpdates, func(ctx context.Context, req *uds.Request) *uds.Response {
		msg, err := e.updates.Check(ctx)
		if err != nil {
			return e.failure(req, err)
		}
		e.logger.Infof("command=%s request_id=%s: %s", req.Command, req.RequestID, msg)
		return uds.SuccessResponse(model.MessageResult{Message: msg})
	})
	e.server.Handle(model.CommandSaveLog, e.handleSaveLog)
}

func (e *Executor) handleGetStatus(ctx context.Context, req *uds.Request) *uds.Response {
	st, err := e.control.Status(ctx)
	if err != nil {
		return e.failure(req, err)
	}
	if st.OSBuildLabel == "" {
		st.OSBuildLabel = model.UnknownBuildLabel
	}
	return uds.SuccessResponse(st)
}

func (e *Executor) handleSaveLog(ctx context.Context, req *uds.Request) *uds.Response {
	var p model.SaveLogParams
	if err := req.DecodeParams(&p); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}

	var dest string
	var err error
	e.lockMap.Do(resourceExport, func() {
		dest, err = e.logs.Save(p.Text)
	})
	if err != nil {
		return e.failure(req, err)
	}
	e.logger.Infof("command=%s request_id=%s saved %d bytes to %s", req.Command, req.RequestID, len(p.Text), dest)
	return uds.SuccessResponse(model.SaveLogResult{Destination: dest})
}

func (e *Executor) toggleHandler(resource string, set func(context.Context, bool) (string, error)) uds.HandlerFunc {
	return func(ctx context.Context, req *uds.Request) *uds.Response {
		var p model.ToggleParams
		if err := req.DecodeParams(&p); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
		}
		return e.messageHandler(resource, func(ctx context.Context, _ *uds.Request) (string, error) {
			return set(ctx, p.Enable)
		})(ctx, req)
	}
}

func (e *Executor) messageHandler(resource string, fn func(context.Context, *uds.Request) (string, error)) uds.HandlerFunc {
	return func(ctx context.Context, req *uds.Request) *uds.Response {
		var msg string
		var err error
		e.lockMap.Do(resource, func() {
			msg, err = fn(ctx, req)
		})
		if err != nil {
			return e.failure(req, err)
		}
		e.logger.Infof("command=%s request_id=%s: %s", req.Command, req.RequestID, msg)
		return uds.SuccessResponse(model.MessageResult{Message: msg})
	}
}

func (e *Executor) failure(req *uds.Request, err error) *uds.Response {
	code, msg := uds.ErrCodeOperationFailed, err.Error()
	switch {
	case errors.Is(err, ErrPrivilegeDenied):
		code = uds.ErrCodePrivilegeDenied
	case errors.Is(err, context.DeadlineExceeded):
		msg = fmt.Sprintf("%s abandoned at the panel's deadline", req.Command)
	}
	e.logger.Warnf("command=%s request_id=%s failed: %v", req.Command, req.RequestID, err)
	return uds.ErrorResponse(code, msg)
}

// configLoop re-reads config.yaml when it changes and applies new script
// command lines. Other settings take effect on restart.
func (e *Executor) configLoop() {
	defer e.wg.Done()

	configPath := setup.ConfigPath(e.home)
	for {
		select {
		case <-e.ctx.Done():
			return
		case event, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != configPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				e.logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
				e.reloadConfig()
			}
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			e.logger.Errorf("fsnotify error=%v", err)
		}
	}
}

func (e *Executor) reloadConfig() {
	cfg, err := setup.LoadConfig(e.home)
	if err != nil {
		e.logger.Warnf("config reload ignored: %v", err)
		return
	}
	r, ok := e.control.(scriptReloader)
	if !ok {
		return
	}
	r.SetScripts(cfg.Executor.Scripts)
	e.logger.Infof("script commands reloaded")
}

// waitSignals blocks until a shutdown signal arrives or Shutdown is called elsewhere.
func (e *Executor) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		e.logger.Infof("received signal=%s, initiating graceful shutdown", sig)
		// Second signal → force exit
		go func() {
			select {
			case <-sigCh:
				e.logger.Warnf("received second signal, forcing exit")
				os.Exit(1)
			case <-e.done:
			}
		}()
		e.Shutdown()
	case <-e.ctx.Done():
	}
	<-e.done
}

// Shutdown performs graceful shutdown (idempotent via sync.Once).
func (e *Executor) Shutdown() {
	e.shutdown.Do(func() {
		defer close(e.done)
		e.logger.Infof("shutdown started")

		e.cancel()
		if e.watcher != nil {
			e.watcher.Close()
		}
		// Stop waits for in-flight commands to answer.
		stopped := make(chan struct{})
		go func() {
			e.server.Stop()
			e.wg.Wait()
			close(stopped)
		}()

		timeout := time.Duration(e.config.Daemon.ShutdownTimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		select {
		case <-stopped:
			e.logger.Infof("all goroutines drained")
		case <-time.After(timeout):
			e.logger.Warnf("shutdown timeout after %s, some operations may be incomplete", timeout)
		}

		e.logger.Infof("executor stopped")
		e.cleanup()
	})
}

func (e *Executor) cleanup() {
	os.Remove(e.SocketPath())
	e.fileLock.Unlock()
	if e.logFile != nil {
		e.logFile.Close()
	}
}
