package debugsvc

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Dumper renders a thread dump.
type Dumper interface {
	Dump(ctx context.Context) (string, error)
}

// DumperFunc adapts a function to Dumper.
type DumperFunc func(ctx context.Context) (string, error)

func (f DumperFunc) Dump(ctx context.Context) (string, error) { return f(ctx) }

// NewCoalescingDumper returns a Dumper that shares one dump between
// concurrent callers and reuses it for maxAge afterwards. A dump runs a
// checkpoint on every thread, so a burst of requests shouldn't multiply that.
func NewCoalescingDumper(underlying Dumper, maxAge time.Duration) Dumper {
	return &coalescingDumper{underlying: underlying, maxAge: maxAge}
}

type coalescingDumper struct {
	g          singleflight.Group
	maxAge     time.Duration
	underlying Dumper
	mu         struct {
		sync.Mutex
		last   string
		lastAt time.Time
	}
}

func (d *coalescingDumper) getCached() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mu.lastAt.IsZero() || time.Since(d.mu.lastAt) > d.maxAge {
		return "", false
	}
	return d.mu.last, true
}

func (d *coalescingDumper) Dump(ctx context.Context) (string, error) {
	if s, ok := d.getCached(); ok {
		return s, nil
	}
	resC := d.g.DoChan("dump", func() (interface{}, error) {
		// The dump outlives a canceled caller; others may be waiting on it.
		s, err := d.underlying.Dump(context.Background())
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.mu.last, d.mu.lastAt = s, time.Now()
		d.mu.Unlock()
		return s, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resC:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}
