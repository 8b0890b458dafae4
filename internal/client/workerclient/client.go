// Package workerclient invokes the out-of-process processing worker over
// gRPC and relays its progress frames.
package workerclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/auth"
	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/common"
	"github.com/dmitrijs2005/poleshift/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ErrNoResult is returned when the stream closes before a result frame.
var ErrNoResult = errors.New("worker stream ended without a result")

const tokenValidity = 5 * time.Minute

type Client struct {
	conn    *grpc.ClientConn
	client  rpc.WorkerClient
	secret  []byte
	subject string
}

// WithMaxMessageSize overrides the per-message limit in both directions.
func WithMaxMessageSize(n int) grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(n), grpc.MaxCallSendMsgSize(n))
}

// New dials addr lazily. Every call carries a short-lived token signed with
// secret; subject identifies the caller in worker logs. Messages up to
// common.MaxWorkerMessageSize are accepted unless opts say otherwise.
func New(addr string, secret []byte, subject string, opts ...grpc.DialOption) (*Client, error) {
	c := &Client{secret: secret, subject: subject}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.unaryTokenInterceptor),
		grpc.WithStreamInterceptor(c.streamTokenInterceptor),
		WithMaxMessageSize(common.MaxWorkerMessageSize),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = rpc.NewWorkerClient(conn)
	return c, nil
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *Client) tokenContext(ctx context.Context) (context.Context, error) {
	token, err := auth.GenerateToken(c.subject, c.secret, tokenValidity)
	if err != nil {
		return nil, fmt.Errorf("failed to sign worker token: %w", err)
	}
	return withAccessToken(ctx, token), nil
}

func (c *Client) unaryTokenInterceptor(ctx context.Context, method string, req, reply any,
	cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	ctx, err := c.tokenContext(ctx)
	if err != nil {
		return err
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (c *Client) streamTokenInterceptor(ctx context.Context, desc *grpc.StreamDesc,
	cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	ctx, err := c.tokenContext(ctx)
	if err != nil {
		return nil, err
	}
	return streamer(ctx, desc, cc, method, opts...)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(ctx)
	if err != nil {
		return mapError(err)
	}
	if s, _ := resp.AsMap()["status"].(string); s != "OK" {
		return common.ErrUnavailable
	}
	return nil
}

// Invoke runs one processing request. emit receives progress frames in the
// order the worker sent them; it runs on the calling goroutine.
func (c *Client) Invoke(ctx context.Context, req models.InvocationRequest, emit func(models.ProgressEvent)) (*models.InvocationResult, error) {
	msg, err := rpc.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	stream, err := c.client.Process(ctx, msg)
	if err != nil {
		return nil, mapError(err)
	}

	var result *models.InvocationResult
	for {
		frame, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, mapError(err)
		}

		ev, res, err := rpc.DecodeFrame(frame)
		if err != nil {
			return nil, err
		}
		if ev != nil && emit != nil {
			emit(*ev)
		}
		if res != nil && result == nil {
			result = res
		}
	}

	if result == nil {
		return nil, ErrNoResult
	}
	return result, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return common.ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return common.ErrUnavailable
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrInvalidInput, st.Message())
	default:
		return fmt.Errorf("worker call: %w", err)
	}
}
