// Package debugsvc implements the debugger RPC surface of a thread list:
// listing threads, suspending and resuming them and dumping their stacks.
//
// The service is described by hand instead of by generated code; every
// payload is a well-known protobuf type.
package debugsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "safepoint.debug.v1.Debugger"

const (
	Debugger_Info_FullMethodName          = "/" + ServiceName + "/Info"
	Debugger_ListThreads_FullMethodName   = "/" + ServiceName + "/ListThreads"
	Debugger_SuspendThread_FullMethodName = "/" + ServiceName + "/SuspendThread"
	Debugger_ResumeThread_FullMethodName  = "/" + ServiceName + "/ResumeThread"
	Debugger_SuspendAll_FullMethodName    = "/" + ServiceName + "/SuspendAll"
	Debugger_ResumeAll_FullMethodName     = "/" + ServiceName + "/ResumeAll"
	Debugger_DumpThreads_FullMethodName   = "/" + ServiceName + "/DumpThreads"
)

// DebuggerServer is the server API for the Debugger service.
type DebuggerServer interface {
	Info(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListThreads(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	SuspendThread(context.Context, *wrapperspb.UInt32Value) (*wrapperspb.BoolValue, error)
	ResumeThread(context.Context, *wrapperspb.UInt32Value) (*wrapperspb.BoolValue, error)
	SuspendAll(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	ResumeAll(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	DumpThreads(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
}

// UnimplementedDebuggerServer can be embedded for forward compatibility.
type UnimplementedDebuggerServer struct{}

func (UnimplementedDebuggerServer) Info(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Info not implemented")
}
func (UnimplementedDebuggerServer) ListThreads(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListThreads not implemented")
}
func (UnimplementedDebuggerServer) SuspendThread(context.Context, *wrapperspb.UInt32Value) (*wrapperspb.BoolValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SuspendThread not implemented")
}
func (UnimplementedDebuggerServer) ResumeThread(context.Context, *wrapperspb.UInt32Value) (*wrapperspb.BoolValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ResumeThread not implemented")
}
func (UnimplementedDebuggerServer) SuspendAll(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SuspendAll not implemented")
}
func (UnimplementedDebuggerServer) ResumeAll(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ResumeAll not implemented")
}
func (UnimplementedDebuggerServer) DumpThreads(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DumpThreads not implemented")
}

// RegisterDebuggerServer registers srv with s.
func RegisterDebuggerServer(s grpc.ServiceRegistrar, srv DebuggerServer) {
	s.RegisterService(&Debugger_ServiceDesc, srv)
}

// unaryHandler builds a grpc.MethodDesc handler for a unary method taking
// requests of type Req.
func unaryHandler[Req any, Resp any](
	fullMethod string, call func(DebuggerServer, context.Context, *Req) (Resp, error),
) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DebuggerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(DebuggerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Debugger_ServiceDesc is the grpc.ServiceDesc for the Debugger service.
var Debugger_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DebuggerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Info",
			Handler:    unaryHandler(Debugger_Info_FullMethodName, DebuggerServer.Info),
		},
		{
			MethodName: "ListThreads",
			Handler:    unaryHandler(Debugger_ListThreads_FullMethodName, DebuggerServer.ListThreads),
		},
		{
			MethodName: "SuspendThread",
			Handler:    unaryHandler(Debugger_SuspendThread_FullMethodName, DebuggerServer.SuspendThread),
		},
		{
			MethodName: "ResumeThread",
			Handler:    unaryHandler(Debugger_ResumeThread_FullMethodName, DebuggerServer.ResumeThread),
		},
		{
			MethodName: "SuspendAll",
			Handler:    unaryHandler(Debugger_SuspendAll_FullMethodName, DebuggerServer.SuspendAll),
		},
		{
			MethodName: "ResumeAll",
			Handler:    unaryHandler(Debugger_ResumeAll_FullMethodName, DebuggerServer.ResumeAll),
		},
		{
			MethodName: "DumpThreads",
			Handler:    unaryHandler(Debugger_DumpThreads_FullMethodName, DebuggerServer.DumpThreads),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "safepoint/debug/v1/debugger.proto",
}

// DebuggerClient is the client API for the Debugger service.
type DebuggerClient interface {
	Info(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListThreads(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	SuspendThread(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	ResumeThread(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	SuspendAll(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
	ResumeAll(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
	DumpThreads(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
}

type debuggerClient struct {
	cc grpc.ClientConnInterface
}

// NewDebuggerClient returns a client using cc.
func NewDebuggerClient(cc grpc.ClientConnInterface) DebuggerClient {
	return &debuggerClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in interface{}, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *debuggerClient) Info(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, Debugger_Info_FullMethodName, in, opts)
}

func (c *debuggerClient) ListThreads(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, Debugger_ListThreads_FullMethodName, in, opts)
}

func (c *debuggerClient) SuspendThread(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	return invoke[wrapperspb.BoolValue](ctx, c.cc, Debugger_SuspendThread_FullMethodName, in, opts)
}

func (c *debuggerClient) ResumeThread(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	return invoke[wrapperspb.BoolValue](ctx, c.cc, Debugger_ResumeThread_FullMethodName, in, opts)
}

func (c *debuggerClient) SuspendAll(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, Debugger_SuspendAll_FullMethodName, in, opts)
}

func (c *debuggerClient) ResumeAll(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, Debugger_ResumeAll_FullMethodName, in, opts)
}

func (c *debuggerClient) DumpThreads(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke[wrapperspb.StringValue](ctx, c.cc, Debugger_DumpThreads_FullMethodName, in, opts)
}
