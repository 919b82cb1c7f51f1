package threadlist

import (
	"os"
	"time"

	"github.com/DataExMachina-dev/safepoint-go/internal/backoff"
	"github.com/DataExMachina-dev/safepoint-go/internal/idalloc"
	"github.com/DataExMachina-dev/safepoint-go/internal/log"
)

// Option configures a ThreadList.
type Option interface {
	apply(*config)
}

type config struct {
	mutator   MutatorLock
	collector Collector

	suspendTimeout       time.Duration
	exclusiveTimeout     time.Duration
	dumpTimeout          time.Duration
	emptyCheckpointWake  time.Duration
	emptyCheckpointLimit time.Duration
	daemonGrace          time.Duration
	daemonTimeout        time.Duration
	daemonPoll           time.Duration
	longSuspendThreshold time.Duration
	slowCheckpointWait   time.Duration

	maxThreads     uint32
	clock          backoff.Clock
	backoff        backoff.Policy
	fatal          func(msg string)
	parkBacktraces bool
}

const (
	ENV_SUSPEND_TIMEOUT = "SAFEPOINT_SUSPEND_TIMEOUT"
	ENV_DUMP_TIMEOUT    = "SAFEPOINT_DUMP_TIMEOUT"

	defaultSuspendTimeout       = 10 * time.Second
	defaultDumpTimeout          = 20 * time.Second
	defaultEmptyCheckpointWake  = 100 * time.Millisecond
	defaultEmptyCheckpointLimit = 10 * time.Minute
	defaultDaemonGrace          = 200 * time.Millisecond
	defaultDaemonTimeout        = 2 * time.Second
	defaultDaemonPoll           = time.Millisecond
	defaultLongSuspendThreshold = 5 * time.Millisecond
	defaultSlowCheckpointWait   = time.Millisecond
)

func makeDefaultConfig() config {
	cfg := config{
		suspendTimeout:       defaultSuspendTimeout,
		dumpTimeout:          defaultDumpTimeout,
		emptyCheckpointWake:  defaultEmptyCheckpointWake,
		emptyCheckpointLimit: defaultEmptyCheckpointLimit,
		daemonGrace:          defaultDaemonGrace,
		daemonTimeout:        defaultDaemonTimeout,
		daemonPoll:           defaultDaemonPoll,
		longSuspendThreshold: defaultLongSuspendThreshold,
		slowCheckpointWait:   defaultSlowCheckpointWait,
		maxThreads:           idalloc.DefaultMax,
		clock:                backoff.RealClock{},
		backoff:              backoff.DefaultPolicy,
		fatal:                defaultFatal,
	}
	if d, ok := durationFromEnv(ENV_SUSPEND_TIMEOUT); ok {
		cfg.suspendTimeout = d
	}
	if d, ok := durationFromEnv(ENV_DUMP_TIMEOUT); ok {
		cfg.dumpTimeout = d
	}
	return cfg
}

func durationFromEnv(name string) (time.Duration, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warningf(nil, "ignoring %s=%q: not a positive duration", name, v)
		return 0, false
	}
	return d, true
}

func defaultFatal(msg string) {
	log.Depth(3).Fatal(nil, msg)
}

type optionFunc func(cfg *config)

func (f optionFunc) apply(cfg *config) {
	f(cfg)
}

// WithMutatorLock replaces the default mutator lock.
func WithMutatorLock(m MutatorLock) Option {
	return optionFunc(func(cfg *config) {
		cfg.mutator = m
	})
}

// WithCollector installs the collector the list reports pauses and flips to.
// Defaults to NopCollector.
func WithCollector(c Collector) Option {
	return optionFunc(func(cfg *config) {
		cfg.collector = c
	})
}

// WithSuspendTimeout bounds how long a suspension waits for threads to reach
// a safepoint. Defaults to 10s, or SAFEPOINT_SUSPEND_TIMEOUT if set.
func WithSuspendTimeout(d time.Duration) Option {
	return optionFunc(func(cfg *config) {
		cfg.suspendTimeout = d
	})
}

// WithExclusiveTimeout bounds the exclusive acquisition of the mutator lock
// after all threads reached a safepoint. Defaults to the suspend timeout.
func WithExclusiveTimeout(d time.Duration) Option {
	return optionFunc(func(cfg *config) {
		cfg.exclusiveTimeout = d
	})
}

// WithCheckpointDumpTimeout bounds how long Dump waits for threads to run the
// dump checkpoint. Defaults to 20s, or SAFEPOINT_DUMP_TIMEOUT if set.
func WithCheckpointDumpTimeout(d time.Duration) Option {
	return optionFunc(func(cfg *config) {
		cfg.dumpTimeout = d
	})
}

// WithEmptyCheckpointTimeouts sets the period at which RunEmptyCheckpoint
// re-wakes blocked threads and the total time after which it gives up.
func WithEmptyCheckpointTimeouts(wake, limit time.Duration) Option {
	return optionFunc(func(cfg *config) {
		cfg.emptyCheckpointWake = wake
		cfg.emptyCheckpointLimit = limit
	})
}

// WithDaemonShutdownTimeouts sets the grace period Shutdown sleeps after
// suspending daemon threads, the total time it then polls for them to reach a
// safepoint and the poll interval.
func WithDaemonShutdownTimeouts(grace, timeout, poll time.Duration) Option {
	return optionFunc(func(cfg *config) {
		cfg.daemonGrace = grace
		cfg.daemonTimeout = timeout
		cfg.daemonPoll = poll
	})
}

// WithMaxThreads bounds the number of thread ids. Defaults to 65536.
func WithMaxThreads(n uint32) Option {
	return optionFunc(func(cfg *config) {
		cfg.maxThreads = n
	})
}

// WithClock replaces the clock used by polling loops.
func WithClock(c backoff.Clock) Option {
	return optionFunc(func(cfg *config) {
		cfg.clock = c
	})
}

// WithFatalHandler sets the function called on unrecoverable timeouts.
// Defaults to glog's Fatal. If the handler returns, the list panics with the
// same message.
func WithFatalHandler(f func(msg string)) Option {
	return optionFunc(func(cfg *config) {
		cfg.fatal = f
	})
}

// WithParkBacktraces makes threads record their call stack whenever they
// leave Runnable, so dumps can show where a suspended thread is parked.
func WithParkBacktraces(enabled bool) Option {
	return optionFunc(func(cfg *config) {
		cfg.parkBacktraces = enabled
	})
}

// WithLongSuspendThreshold sets the pause above which SuspendAll logs a
// warning unless the caller declared a long suspension. Defaults to 5ms.
func WithLongSuspendThreshold(d time.Duration) Option {
	return optionFunc(func(cfg *config) {
		cfg.longSuspendThreshold = d
	})
}
