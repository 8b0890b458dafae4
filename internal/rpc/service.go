// Package rpc is the agent/worker gRPC contract. Messages are
// google.protobuf.Struct values so both sides share the default proto codec
// without generated stubs; the helpers in convert.go map them to models.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "poleshift.worker.v1.ProcessingWorker"

const (
	PingMethod    = "/" + ServiceName + "/Ping"
	ProcessMethod = "/" + ServiceName + "/Process"
)

// WorkerServer is implemented by the processing worker.
type WorkerServer interface {
	Ping(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// Process streams zero or more progress frames followed by exactly one
	// result frame.
	Process(req *structpb.Struct, stream ProcessServer) error
}

type ProcessServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type processServer struct {
	grpc.ServerStream
}

func (s *processServer) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PingMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).Ping(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func processHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(WorkerServer).Process(in, &processServer{stream})
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: pingHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Process", Handler: processHandler, ServerStreams: true},
	},
	Metadata: "poleshift/worker/v1/worker.proto",
}

func RegisterWorkerServer(s grpc.ServiceRegistrar, srv WorkerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// WorkerClient is the agent side of the contract.
type WorkerClient interface {
	Ping(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error)
	Process(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (ProcessClient, error)
}

type ProcessClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type workerClient struct {
	cc grpc.ClientConnInterface
}

func NewWorkerClient(cc grpc.ClientConnInterface) WorkerClient {
	return &workerClient{cc: cc}
}

func (c *workerClient) Ping(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PingMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerClient) Process(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (ProcessClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], ProcessMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &processClient{stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type processClient struct {
	grpc.ClientStream
}

func (x *processClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
