package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/logging"
	"github.com/dmitrijs2005/poleshift/internal/rpc"
	"google.golang.org/grpc"
)

// Processor handles one data type. emit may be called any number of times
// before Process returns.
type Processor interface {
	Process(ctx context.Context, req models.InvocationRequest, emit func(pct int, msg string)) (models.Report, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, req models.InvocationRequest, emit func(pct int, msg string)) (models.Report, error)

func (f ProcessorFunc) Process(ctx context.Context, req models.InvocationRequest, emit func(pct int, msg string)) (models.Report, error) {
	return f(ctx, req, emit)
}

type Options struct {
	MaxMessageSize int
	RequestTimeout time.Duration
}

type GRPCServer struct {
	address    string
	logger     logging.Logger
	jwtSecret  []byte
	processors map[models.DataType]Processor
	opts       Options
}

func NewGRPCServer(a string, l logging.Logger, secretKey string, processors map[models.DataType]Processor, opts Options) *GRPCServer {
	return &GRPCServer{
		address:    a,
		logger:     l.With("module", "grpc_server"),
		jwtSecret:  []byte(secretKey),
		processors: processors,
		opts:       opts,
	}
}

func (s *GRPCServer) serverOptions() []grpc.ServerOption {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.accessTokenStreamInterceptor),
	}
	if s.opts.MaxMessageSize > 0 {
		opts = append(opts,
			grpc.MaxSendMsgSize(s.opts.MaxMessageSize),
			grpc.MaxRecvMsgSize(s.opts.MaxMessageSize))
	}
	return opts
}

// NewServer builds the grpc.Server with this service registered.
func (s *GRPCServer) NewServer() *grpc.Server {
	srv := grpc.NewServer(s.serverOptions()...)
	rpc.RegisterWorkerServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts on lis until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
