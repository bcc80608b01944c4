package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/tiroq/memoscribe/internal/config"
	"github.com/tiroq/memoscribe/internal/diaglog"
	"github.com/tiroq/memoscribe/internal/ipc"
	"github.com/tiroq/memoscribe/internal/media"
	"github.com/tiroq/memoscribe/internal/pidfile"
	"github.com/tiroq/memoscribe/internal/server"
	"github.com/tiroq/memoscribe/internal/session"
	"github.com/tiroq/memoscribe/internal/templates"
	"github.com/tiroq/memoscribe/internal/transport"
)

const logPrefix = "[memoscribe-core]"

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	outLog *log.Logger
	errLog *log.Logger
)

func diagLogPath() string {
	if p := os.Getenv("MEMOSCRIBE_LOG_PATH"); p != "" {
		return p
	}
	return "/tmp/memoscribe-debug.log"
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--export-diag" {
		diaglog.Version = Version
		path, n, err := diaglog.Export(diagLogPath(), ".")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(os.Stderr, "hint: run with MEMOSCRIBE_DEBUG=true to enable logging")
				os.Exit(1)
			}
			os.Exit(2)
		}
		fmt.Printf("Wrote: %s (%d lines)\n", path, n)
		os.Exit(0)
	}

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in memoscribe-core: %v\n", r)
			if errLog != nil {
				errLog.Printf("PANIC: %v", r)
			}
			os.Exit(1)
		}
	}()

	if err := initLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	if err := run(); err != nil {
		errLog.Printf("[FATAL] %v", err)
		fmt.Fprintln(os.Stderr, "memoscribe-core:", err)
		os.Exit(1)
	}
}

func run() error {
	outLog.Println("===========================================")
	outLog.Println("Starting Memoscribe Core v" + Version + "...")
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Println("===========================================")

	stateDir := ipc.DefaultDir()
	pf, err := pidfile.Acquire(pidfile.Path(stateDir, "memoscribe-core"))
	if err != nil {
		return err
	}
	defer func() {
		if err := pf.Remove(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()

	outLog.Println("[STARTUP] Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	outLog.Printf("[STARTUP] ASR primary=%s fallback=%q summarizer=%s",
		cfg.ASR.Primary, cfg.ASR.Fallback, cfg.ASR.Summarizer)
	if os.Getenv(config.EnvJWTSecret) == "" && !cfg.Server.AuthDisabled {
		errLog.Printf("[STARTUP] WARNING: %s not set, using a random secret; tokens will not survive restarts", config.EnvJWTSecret)
	}

	diagLogger, diagErr := diaglog.New(diagLogPath())
	if diagErr != nil {
		errLog.Printf("[STARTUP] WARNING: could not open diagnostic log: %v (continuing)", diagErr)
		diagLogger = diaglog.NewNoOp()
	}
	defer func() { _ = diagLogger.Close() }()
	diaglog.Version = Version

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	caps, err := buildCapabilities(ctx, cfg.ASR, diagLogger)
	if err != nil {
		return fmt.Errorf("configure backends: %w", err)
	}
	checkHealth(ctx, caps, diagLogger)

	tr := transport.New(media.FFProbe{})
	tr.SetLogger(diagLogger)

	sc := cfg.Session
	sess := session.New(session.Config{
		Transcriber:      caps.registry,
		Summarizer:       caps.summarizer,
		Suggester:        caps.suggester,
		Transport:        tr,
		ProgressStep:     sc.ProgressStep,
		ProgressInterval: time.Duration(sc.ProgressIntervalMS) * time.Millisecond,
		ProgressCap:      sc.ProgressCap,
		URLSettleDelay:   time.Duration(sc.URLSettleMS) * time.Millisecond,
		CallTimeout:      time.Duration(sc.CallTimeoutSeconds) * time.Second,
	})
	sess.SetLogger(diagLogger)
	diagLogger.SetSessionID(sess.ID())
	defer sess.Close()
	outLog.Printf("[STARTUP] Session %s ready", sess.ID())

	store, err := templates.Open(cfg.TemplatesDB)
	if err != nil {
		return err
	}
	defer store.Close()

	var auth *server.Auth
	if !cfg.Server.AuthDisabled {
		auth = server.NewAuth(cfg.Server.JWTSecret)
	}
	srv := server.New(server.Options{
		Session:     sess,
		Templates:   store,
		Health:      caps.registry,
		Auth:        auth,
		CORSOrigins: cfg.Server.CORSOrigins,
		ExportDir:   cfg.ExportDir,
		UploadDir:   filepath.Join(stateDir, "uploads"),
		Log:         outLog,
	})
	srv.SetLogger(diagLogger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		statusMu    sync.Mutex
		lastCommand string
		lastError   string
	)
	dispatcher := ipc.NewDispatcher(sess, store, cfg.ExportDir)
	pub := ipc.NewPublisher(stateDir, sess,
		time.Duration(sc.StatusWriteThrottleMS)*time.Millisecond,
		func(st *ipc.Status) {
			statusMu.Lock()
			st.LastCommand, st.LastError = lastCommand, lastError
			statusMu.Unlock()
			st.Backend = caps.registry.Name()
			st.ServerAddr = cfg.Server.Addr
			st.PID = os.Getpid()
		},
		func(err error) { errLog.Printf("Failed to write status: %v", err) },
	)

	handle := func(cmd ipc.Command) {
		outLog.Printf("[COMMAND] %s", cmd.Verb)
		diagLogger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentCore,
			Event:     diaglog.EventCommandReceived,
			Reason:    "command_file",
			Payload:   map[string]string{"command": string(cmd.Verb)},
		})
		err := dispatcher.Dispatch(cmd)
		if errors.Is(err, ipc.ErrQuit) {
			outLog.Println("[COMMAND] quit requested")
			cancel()
			return
		}
		statusMu.Lock()
		lastCommand = cmd.String()
		lastError = ""
		if err != nil {
			lastError = err.Error()
		}
		statusMu.Unlock()
		if err != nil {
			errLog.Printf("[COMMAND] %s failed: %v", cmd.Verb, err)
		}
		pub.Publish()
	}
	reject := func(err error) {
		errLog.Printf("[COMMAND] rejected: %v", err)
		diagLogger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentCore,
			Event:     diaglog.EventCommandRejected,
			Reason:    err.Error(),
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := ipc.NewWatcher(stateDir, handle, reject, outLog.Printf).Run(ctx); err != nil {
			errLog.Printf("Command watcher stopped: %v", err)
		}
	}()

	outLog.Printf("[STARTUP] HTTP API listening on %s", cfg.Server.Addr)
	outLog.Println("[RUNNING] Memoscribe Core is running")
	serveErr := srv.Run(ctx, cfg.Server.Addr)

	outLog.Println("===========================================")
	outLog.Printf("[SHUTDOWN] Shutting down at %s", time.Now().Format(time.RFC3339))
	cancel()
	wg.Wait()
	outLog.Println("[SHUTDOWN] Shutdown complete")
	return serveErr
}

// checkHealth logs the health of every registered transcriber. Failures are
// warnings; the daemon still starts.
func checkHealth(ctx context.Context, caps *capabilities, logger *diaglog.Logger) {
	for _, hs := range caps.registry.CheckAll(ctx, 10*time.Second) {
		payload := map[string]interface{}{"backend": hs.Backend, "ok": hs.OK}
		if hs.OK {
			outLog.Printf("[STARTUP] ASR backend %s healthy (latency=%s)", hs.Backend, hs.Latency)
			payload["latency"] = hs.Latency.String()
		} else {
			errLog.Printf("[STARTUP] WARNING: ASR backend %s unhealthy: %s", hs.Backend, hs.Message)
			payload["message"] = hs.Message
		}
		logger.Log(diaglog.LogEntry{Component: diaglog.ComponentASR, Event: diaglog.EventASRHealthCheck, Payload: payload})
	}
}

// initLogging sets up log files with rotation support
func initLogging() error {
	logDir := os.TempDir()
	outLogPath := filepath.Join(logDir, "memoscribe-core.out.log")
	errLogPath := filepath.Join(logDir, "memoscribe-core.err.log")

	for _, p := range []string{outLogPath, errLogPath} {
		if err := rotateLogIfNeeded(p, 10*1024*1024); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate %s: %v\n", p, err)
		}
	}

	outFile, err := os.OpenFile(outLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	errFile, err := os.OpenFile(errLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	outLog = log.New(outFile, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errFile, logPrefix+" ERROR: ", log.LstdFlags)
	return nil
}

// rotateLogIfNeeded moves logPath to logPath.old once it exceeds maxSize.
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxSize {
		return nil
	}
	return os.Rename(logPath, logPath+".old")
}
