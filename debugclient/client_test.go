package debugclient_test

import (
	"context"
	"errors"
	"net"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/DataExMachina-dev/safepoint-go/debugagent"
	"github.com/DataExMachina-dev/safepoint-go/debugclient"
	"github.com/DataExMachina-dev/safepoint-go/threadlist"
)

// startWorker attaches a thread that polls until stop is closed.
func startWorker(l *threadlist.ThreadList, stop <-chan struct{}) (*threadlist.Thread, <-chan struct{}) {
	done := make(chan struct{})
	ready := make(chan *threadlist.Thread)
	go func() {
		defer close(done)
		t := l.Attach("worker")
		t.TransitionFromSuspendedToRunnable()
		ready <- t
		for {
			select {
			case <-stop:
				t.TransitionFromRunnableToSuspended(threadlist.Native)
				l.Unregister(t)
				return
			default:
			}
			t.Poll()
			runtime.Gosched()
		}
	}()
	return <-ready, done
}

func dialer(lis *bufconn.Listener) debugclient.WithDialOptions {
	return debugclient.WithDialOptions{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	}
}

func TestClientAgainstAgent(t *testing.T) {
	ctx := context.Background()
	l := threadlist.New()
	stop := make(chan struct{})
	worker, workerDone := startWorker(l, stop)

	lis := bufconn.Listen(1 << 20)
	agent, err := debugagent.Start(ctx, l, debugagent.WithListener(lis), debugagent.WithToken("secret"))
	require.NoError(t, err)
	defer agent.Stop()

	// The port is ignored by the in-memory dialer.
	url := debugclient.WithURL("http://127.0.0.1:1")

	anon, err := debugclient.New(url, dialer(lis))
	require.NoError(t, err)
	defer anon.Close()
	_, err = anon.Info(ctx)
	var unauth debugclient.UnauthenticatedError
	require.True(t, errors.As(err, &unauth), "got %v", err)

	c, err := debugclient.New(url, debugclient.WithToken("secret"), dialer(lis))
	require.NoError(t, err)
	defer c.Close()

	info, err := c.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, info.Threads)
	require.NotEmpty(t, info.Fingerprint)

	threads, err := c.ListThreads(ctx)
	require.NoError(t, err)
	names := map[string]debugclient.ThreadInfo{}
	for _, ti := range threads {
		names[ti.Name] = ti
	}
	require.Contains(t, names, "worker")
	require.Contains(t, names, "debugger")
	require.True(t, names["debugger"].Daemon)
	require.Equal(t, "Runnable", names["worker"].State)

	ok, err := c.SuspendThread(ctx, worker.ID())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, worker.IsSuspended())
	require.Equal(t, 1, worker.DebugSuspendCount())

	ok, err = c.ResumeThread(ctx, worker.ID())
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = c.ResumeThread(ctx, worker.ID())
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = c.SuspendThread(ctx, 4242)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.SuspendAll(ctx))
	require.True(t, worker.IsSuspended())
	require.Equal(t, 1, l.DebugSuspendAllCount())
	require.NoError(t, c.ResumeAll(ctx))
	require.Equal(t, 0, worker.SuspendCount())

	dump, err := c.DumpThreads(ctx)
	require.NoError(t, err)
	require.Contains(t, dump, "MANAGED THREADS (2):")
	require.Contains(t, dump, `"worker" tid=`)

	close(stop)
	<-workerDone
}

func TestNewRejectsUnknownScheme(t *testing.T) {
	_, err := debugclient.New(debugclient.WithURL("ftp://example.com"))
	require.Error(t, err)
}

func TestWithTokenFromEnv(t *testing.T) {
	t.Setenv(debugclient.ENV_AGENT_TOKEN, "from-env")
	c, err := debugclient.New(debugclient.WithURL("http://127.0.0.1:1"), debugclient.WithTokenFromEnv{})
	require.NoError(t, err)
	c.Close()
}
