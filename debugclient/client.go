// Package debugclient talks to a debug agent.
package debugclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/DataExMachina-dev/safepoint-go/internal/debugsvc"
)

const (
	defaultURL = "http://127.0.0.1:7777"

	ENV_AGENT_URL   = "SAFEPOINT_AGENT_URL"
	ENV_AGENT_TOKEN = "SAFEPOINT_AGENT_TOKEN"
)

// ThreadInfo describes one thread of the debugged process.
type ThreadInfo = debugsvc.ThreadInfo

// Client is a client for a debug agent.
type Client struct {
	conn   *grpc.ClientConn
	client debugsvc.DebuggerClient
	token  string
}

type clientOpts struct {
	url      string
	token    string
	dialOpts []grpc.DialOption
}

// ClientOption is the interface implemented by options for New.
type ClientOption interface {
	apply(*clientOpts) error
}

// WithURL is the agent's URL, http or https. Defaults to the
// SAFEPOINT_AGENT_URL environment variable, or http://127.0.0.1:7777.
type WithURL string

var _ ClientOption = WithURL("")

// apply implements the ClientOption interface.
func (u WithURL) apply(opts *clientOpts) error {
	opts.url = string(u)
	return nil
}

// WithToken is the token the agent was started with.
type WithToken string

var _ ClientOption = WithToken("")

// apply implements the ClientOption interface.
func (t WithToken) apply(opts *clientOpts) error {
	opts.token = string(t)
	return nil
}

// WithTokenFromEnv reads the token from the SAFEPOINT_AGENT_TOKEN
// environment variable. If that variable is not set, New returns an error.
type WithTokenFromEnv struct{}

var _ ClientOption = WithTokenFromEnv{}

// apply implements the ClientOption interface.
func (WithTokenFromEnv) apply(opts *clientOpts) error {
	tok, ok := os.LookupEnv(ENV_AGENT_TOKEN)
	if !ok {
		return fmt.Errorf("%s environment variable required by WithTokenFromEnv is not set", ENV_AGENT_TOKEN)
	}
	opts.token = tok
	return nil
}

// WithDialOptions adds gRPC dial options, for example a custom dialer.
type WithDialOptions []grpc.DialOption

// apply implements the ClientOption interface.
func (d WithDialOptions) apply(opts *clientOpts) error {
	opts.dialOpts = append(opts.dialOpts, d...)
	return nil
}

// New creates a Client. Close needs to be called on the client when it is no
// longer needed to release resources.
func New(options ...ClientOption) (*Client, error) {
	opts := clientOpts{url: defaultURL}
	if u, ok := os.LookupEnv(ENV_AGENT_URL); ok {
		opts.url = u
	}
	for _, o := range options {
		if err := o.apply(&opts); err != nil {
			return nil, err
		}
	}
	address, dialOpts, err := grpcTarget(opts.url)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.Dial(address, append(dialOpts, opts.dialOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the debug agent: %w", err)
	}
	return &Client{conn: conn, client: debugsvc.NewDebuggerClient(conn), token: opts.token}, nil
}

// grpcTarget turns an agent URL into a gRPC address.
func grpcTarget(agentURL string) (string, []grpc.DialOption, error) {
	parsed, err := url.Parse(agentURL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse agent url: %w", err)
	}
	var dialOpts []grpc.DialOption
	switch parsed.Scheme {
	case "http":
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	case "https":
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	default:
		return "", nil, fmt.Errorf("unsupported scheme: %q", parsed.Scheme)
	}
	ip := net.ParseIP(parsed.Hostname())
	switch {
	case ip != nil && parsed.Port() != "":
		return net.JoinHostPort(ip.String(), parsed.Port()), dialOpts, nil
	case ip != nil:
		return ip.String(), dialOpts, nil
	default:
		return fmt.Sprintf("dns:///%s", parsed.Host), dialOpts, nil
	}
}

// Close closes the client's network connection.
func (c *Client) Close() {
	_ /* err */ = c.conn.Close()
}

func (c *Client) ctx(ctx context.Context) context.Context {
	return debugsvc.WithToken(ctx, c.token)
}

// Info describes the debugged process.
type Info struct {
	Fingerprint string
	Pid         int
	Threads     int
	BinaryHash  string
}

// Info returns information about the debugged process.
func (c *Client) Info(ctx context.Context) (Info, error) {
	res, err := c.client.Info(c.ctx(ctx), &emptypb.Empty{})
	if err != nil {
		return Info{}, wrapError(err)
	}
	f := res.GetFields()
	return Info{
		Fingerprint: f["fingerprint"].GetStringValue(),
		Pid:         int(f["pid"].GetNumberValue()),
		Threads:     int(f["threads"].GetNumberValue()),
		BinaryHash:  f["binaryHash"].GetStringValue(),
	}, nil
}

// ListThreads returns the threads of the debugged process.
func (c *Client) ListThreads(ctx context.Context) ([]ThreadInfo, error) {
	res, err := c.client.ListThreads(c.ctx(ctx), &emptypb.Empty{})
	if err != nil {
		return nil, wrapError(err)
	}
	threads := make([]ThreadInfo, 0, len(res.GetValues()))
	for _, v := range res.GetValues() {
		ti, err := debugsvc.ThreadInfoFromStruct(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		threads = append(threads, ti)
	}
	return threads, nil
}

// SuspendThread suspends the thread with the given id. It returns false if
// there's no such thread.
func (c *Client) SuspendThread(ctx context.Context, id uint32) (bool, error) {
	res, err := c.client.SuspendThread(c.ctx(ctx), wrapperspb.UInt32(id))
	if err != nil {
		return false, wrapError(err)
	}
	return res.GetValue(), nil
}

// ResumeThread undoes a SuspendThread. It returns false if the thread isn't
// suspended by the debugger.
func (c *Client) ResumeThread(ctx context.Context, id uint32) (bool, error) {
	res, err := c.client.ResumeThread(c.ctx(ctx), wrapperspb.UInt32(id))
	if err != nil {
		return false, wrapError(err)
	}
	return res.GetValue(), nil
}

// SuspendAll suspends every thread but the agent's.
func (c *Client) SuspendAll(ctx context.Context) error {
	_, err := c.client.SuspendAll(c.ctx(ctx), &emptypb.Empty{})
	return wrapError(err)
}

// ResumeAll undoes a SuspendAll.
func (c *Client) ResumeAll(ctx context.Context) error {
	_, err := c.client.ResumeAll(c.ctx(ctx), &emptypb.Empty{})
	return wrapError(err)
}

// DumpThreads returns a dump of every thread's state and stack.
func (c *Client) DumpThreads(ctx context.Context) (string, error) {
	res, err := c.client.DumpThreads(c.ctx(ctx), &emptypb.Empty{})
	if err != nil {
		return "", wrapError(err)
	}
	return res.GetValue(), nil
}

// UnauthenticatedError is returned when the agent rejected the token.
type UnauthenticatedError struct {
	msg string
}

func (e UnauthenticatedError) Error() string {
	return e.msg
}

// SuspendTimeoutError is returned when a thread didn't reach a safepoint in
// time.
type SuspendTimeoutError struct {
	msg string
}

func (e SuspendTimeoutError) Error() string {
	return e.msg
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	s, _ := status.FromError(err)
	switch s.Code() {
	case codes.Unauthenticated:
		return UnauthenticatedError{msg: s.Message()}
	case codes.DeadlineExceeded:
		if s.Message() != context.DeadlineExceeded.Error() {
			return SuspendTimeoutError{msg: s.Message()}
		}
	case codes.Unavailable:
		return fmt.Errorf("failed to connect to the debug agent: %w", err)
	}
	return err
}
