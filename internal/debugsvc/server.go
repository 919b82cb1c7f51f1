package debugsvc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/highwayhash"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/DataExMachina-dev/safepoint-go/internal/log"
	"github.com/DataExMachina-dev/safepoint-go/threadlist"
)

// Server implements DebuggerServer on top of a thread list.
type Server struct {
	fingerprint uuid.UUID
	startTime   time.Time
	list        *threadlist.ThreadList
	dumper      Dumper
	hash        binaryHashOnce

	// suspendMu serializes everything done on behalf of self: a Thread is
	// used by one goroutine at a time, and peer suspensions must not overlap.
	suspendMu sync.Mutex
	self      *threadlist.Thread

	UnimplementedDebuggerServer
}

var _ DebuggerServer = (*Server)(nil)

type binaryHashOnce struct {
	sync.Once
	hash string
	err  error
}

// NewServer constructs a Server acting as thread self, which must be
// registered with list and stay outside Runnable.
func NewServer(
	fingerprint uuid.UUID,
	list *threadlist.ThreadList,
	self *threadlist.Thread,
	dumpMaxAge time.Duration,
) *Server {
	s := &Server{
		fingerprint: fingerprint,
		startTime:   time.Now(),
		list:        list,
		self:        self,
	}
	s.dumper = NewCoalescingDumper(DumperFunc(s.dump), dumpMaxAge)
	return s
}

// Info implements DebuggerServer.
func (s *Server) Info(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	info := map[string]interface{}{
		"fingerprint": s.fingerprint.String(),
		"pid":         float64(os.Getpid()),
		"startTime":   s.startTime.Format(time.RFC3339Nano),
		"threads":     float64(s.list.Size()),
		"suspendAll":  float64(s.list.SuspendAllCount()),
	}
	// A missing executable isn't worth failing the call over.
	if hash, err := s.getBinaryHash(); err == nil {
		info["binaryHash"] = hash
	} else {
		log.Warningf(s.self, "failed to get binary hash: %v", err)
	}
	res, err := structpb.NewStruct(info)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode info: %v", err)
	}
	return res, nil
}

// ListThreads implements DebuggerServer.
func (s *Server) ListThreads(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	res := &structpb.ListValue{}
	for _, t := range s.list.Threads() {
		st, err := ThreadInfoOf(t).ToStruct()
		if err != nil {
			return nil, status.Errorf(codes.Internal, "failed to encode %v: %v", t, err)
		}
		res.Values = append(res.Values, structpb.NewStructValue(st))
	}
	return res, nil
}

// SuspendThread implements DebuggerServer. It reports false if no thread
// has the id.
func (s *Server) SuspendThread(ctx context.Context, req *wrapperspb.UInt32Value) (*wrapperspb.BoolValue, error) {
	if req.GetValue() == 0 {
		return nil, status.Errorf(codes.InvalidArgument, "invalid thread id 0")
	}
	if req.GetValue() == s.self.ID() {
		return nil, status.Errorf(codes.InvalidArgument, "can't suspend the debugger thread")
	}
	s.suspendMu.Lock()
	defer s.suspendMu.Unlock()
	t, timedOut := s.list.SuspendThreadByThreadID(s.self, req.GetValue(), threadlist.ForDebugger)
	if timedOut {
		return nil, status.Errorf(codes.DeadlineExceeded, "thread %d didn't reach a safepoint", req.GetValue())
	}
	return wrapperspb.Bool(t != nil), nil
}

// ResumeThread implements DebuggerServer.
func (s *Server) ResumeThread(ctx context.Context, req *wrapperspb.UInt32Value) (*wrapperspb.BoolValue, error) {
	s.suspendMu.Lock()
	defer s.suspendMu.Unlock()
	t := s.list.FindThreadByID(req.GetValue())
	if t == nil || t == s.self {
		return wrapperspb.Bool(false), nil
	}
	return wrapperspb.Bool(s.list.Resume(s.self, t, threadlist.ForDebugger)), nil
}

// SuspendAll implements DebuggerServer.
func (s *Server) SuspendAll(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.suspendMu.Lock()
	defer s.suspendMu.Unlock()
	s.list.SuspendAllForDebugger(s.self)
	return &emptypb.Empty{}, nil
}

// ResumeAll implements DebuggerServer.
func (s *Server) ResumeAll(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.suspendMu.Lock()
	defer s.suspendMu.Unlock()
	s.list.ResumeAllForDebugger(s.self)
	return &emptypb.Empty{}, nil
}

// DumpThreads implements DebuggerServer.
func (s *Server) DumpThreads(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	dump, err := s.dumper.Dump(ctx)
	if err != nil {
		return nil, status.FromContextError(err).Err()
	}
	return wrapperspb.String(dump), nil
}

func (s *Server) dump(ctx context.Context) (string, error) {
	s.suspendMu.Lock()
	defer s.suspendMu.Unlock()
	var buf bytes.Buffer
	s.list.DumpForSigQuit(s.self, &buf)
	return buf.String(), nil
}

func (s *Server) getBinaryHash() (string, error) {
	s.hash.Once.Do(func() {
		s.hash.hash, s.hash.err = doHash()
	})
	return s.hash.hash, s.hash.err
}

var hashKey = [32]byte{}

func doHash() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	exeFile, err := os.Open(exe)
	if err != nil {
		return "", fmt.Errorf("failed to open executable file at %s: %w", exe, err)
	}
	defer exeFile.Close()
	hasher, err := highwayhash.New64(hashKey[:])
	if err != nil {
		return "", fmt.Errorf("failed to create hasher: %w", err)
	}
	if _, err := io.Copy(hasher, bufio.NewReader(exeFile)); err != nil {
		return "", fmt.Errorf("failed to hash executable: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
