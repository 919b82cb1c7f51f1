// Package debugagent exposes a thread list to remote debuggers over gRPC and
// renders its threads on an HTTP status page.
package debugagent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/DataExMachina-dev/safepoint-go/internal/debugsvc"
	"github.com/DataExMachina-dev/safepoint-go/internal/log"
	"github.com/DataExMachina-dev/safepoint-go/threadlist"
)

// Option to configure the agent.
type Option interface {
	apply(*config)
}

type config struct {
	token       string
	addr        string
	listener    net.Listener
	threadName  string
	dumpMaxAge  time.Duration
	errorLogger func(err error)
}

const (
	defaultAddr       = "127.0.0.1:7777"
	defaultThreadName = "debugger"
	defaultDumpMaxAge = time.Second

	ENV_AGENT_TOKEN = "SAFEPOINT_AGENT_TOKEN"
	ENV_AGENT_ADDR  = "SAFEPOINT_AGENT_ADDR"
)

func makeDefaultConfig() config {
	cfg := config{
		addr:        defaultAddr,
		threadName:  defaultThreadName,
		dumpMaxAge:  defaultDumpMaxAge,
		errorLogger: func(err error) { log.Error(nil, err) },
	}
	if os.Getenv(ENV_AGENT_TOKEN) != "" {
		cfg.token = os.Getenv(ENV_AGENT_TOKEN)
	}
	if os.Getenv(ENV_AGENT_ADDR) != "" {
		cfg.addr = os.Getenv(ENV_AGENT_ADDR)
	}
	return cfg
}

type optionFunc func(cfg *config)

func (f optionFunc) apply(cfg *config) {
	f(cfg)
}

// WithToken requires debuggers to present token. Defaults to the
// SAFEPOINT_AGENT_TOKEN environment variable; without a token every caller
// is accepted.
func WithToken(token string) Option {
	return optionFunc(func(cfg *config) {
		cfg.token = token
	})
}

// WithAddr sets the TCP address to listen on. Defaults to the
// SAFEPOINT_AGENT_ADDR environment variable, or 127.0.0.1:7777.
func WithAddr(addr string) Option {
	return optionFunc(func(cfg *config) {
		cfg.addr = addr
	})
}

// WithListener serves on l instead of listening on an address.
func WithListener(l net.Listener) Option {
	return optionFunc(func(cfg *config) {
		cfg.listener = l
	})
}

// WithThreadName names the daemon thread the agent registers to act as.
func WithThreadName(name string) Option {
	return optionFunc(func(cfg *config) {
		cfg.threadName = name
	})
}

// WithDumpMaxAge sets how long a thread dump is reused for later requests.
func WithDumpMaxAge(d time.Duration) Option {
	return optionFunc(func(cfg *config) {
		cfg.dumpMaxAge = d
	})
}

// WithErrorLogger sets a function to be called with errors (for example for
// logging them). Defaults to glog.
func WithErrorLogger(f func(err error)) Option {
	return optionFunc(func(cfg *config) {
		cfg.errorLogger = f
	})
}

// Agent serves the debugger surface of one thread list.
type Agent struct {
	cfg    config
	list   *threadlist.ThreadList
	thread *threadlist.Thread
	server *debugsvc.Server

	mu struct {
		sync.Mutex
		grpcServer *grpc.Server
		listener   net.Listener
	}
	g *errgroup.Group
}

// Start registers a daemon debugger thread with list and starts serving on
// a background goroutine. Stop must be called to release them.
func Start(ctx context.Context, list *threadlist.ThreadList, opts ...Option) (*Agent, error) {
	cfg := makeDefaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	fingerprint, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate fingerprint: %w", err)
	}

	l := cfg.listener
	if l == nil {
		var lc net.ListenConfig
		l, err = lc.Listen(ctx, "tcp", cfg.addr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", cfg.addr, err)
		}
	}

	a := &Agent{cfg: cfg, list: list}
	a.thread = list.Attach(cfg.threadName, threadlist.Daemon())
	a.server = debugsvc.NewServer(fingerprint, list, a.thread, cfg.dumpMaxAge)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(debugsvc.TokenInterceptor(cfg.token)))
	debugsvc.RegisterDebuggerServer(s, a.server)

	a.mu.Lock()
	a.mu.grpcServer = s
	a.mu.listener = l
	a.mu.Unlock()

	a.g = &errgroup.Group{}
	a.g.Go(func() error {
		if err := s.Serve(l); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			// TODO: Handle this error better.
			cfg.errorLogger(fmt.Errorf("failed to serve: %w", err))
			return err
		}
		return nil
	})
	log.Infof(a.thread, "debug agent serving on %s", l.Addr())
	return a, nil
}

// Addr returns the address the agent serves on, or nil once stopped.
func (a *Agent) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mu.listener == nil {
		return nil
	}
	return a.mu.listener.Addr()
}

// Stop stops serving and unregisters the debugger thread. It's a no-op if
// the agent is already stopped.
func (a *Agent) Stop() {
	a.mu.Lock()
	s := a.mu.grpcServer
	a.mu.grpcServer = nil
	a.mu.listener = nil
	a.mu.Unlock()
	if s == nil {
		return
	}
	s.Stop()
	// Synchronize with the goroutine handling RPCs.
	_ = a.g.Wait()
	// After shutdown daemon threads stay suspended for good.
	if !a.list.IsShutDown() && a.list.Contains(a.thread) {
		a.list.Unregister(a.thread)
	}
}
