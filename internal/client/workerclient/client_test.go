package workerclient

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/dmitrijs2005/poleshift/internal/auth"
	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/common"
	"github.com/dmitrijs2005/poleshift/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

var secret = []byte("worker-secret")

type fakeWorker struct {
	subjects []string
	gotReq   models.InvocationRequest
	progress []models.ProgressEvent
	result   *models.InvocationResult
	err      error
}

func (f *fakeWorker) authorize(ctx context.Context) error {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(common.AccessTokenHeaderName)
	if len(vals) == 0 {
		return status.Error(codes.Unauthenticated, "missing token")
	}
	sub, err := auth.VerifyToken(vals[0], secret)
	if err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}
	f.subjects = append(f.subjects, sub)
	return nil
}

func (f *fakeWorker) Ping(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := f.authorize(ctx); err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{"status": "OK"})
}

func (f *fakeWorker) Process(req *structpb.Struct, stream rpc.ProcessServer) error {
	if err := f.authorize(stream.Context()); err != nil {
		return err
	}
	r, err := rpc.DecodeRequest(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	f.gotReq = r

	for _, p := range f.progress {
		frame, err := rpc.ProgressFrame(p)
		if err != nil {
			return err
		}
		if err := stream.Send(frame); err != nil {
			return err
		}
	}
	if f.err != nil {
		return f.err
	}
	if f.result != nil {
		frame, err := rpc.ResultFrame(*f.result)
		if err != nil {
			return err
		}
		return stream.Send(frame)
	}
	return nil
}

func startWorker(t *testing.T, w rpc.WorkerServer, clientSecret []byte, opts ...grpc.DialOption) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	rpc.RegisterWorkerServer(srv, w)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	opts = append([]grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	}, opts...)
	c, err := New("passthrough:///bufnet", clientSecret, "agent-test", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func ctdRequest() models.InvocationRequest {
	return models.InvocationRequest{
		DataType: models.DataTypeCTD, SampleID: "s1", OrgID: "o1", UserID: "u1",
		RawDataID: "r1", ProcessedDataID: "p1", Files: []string{"/data/cast.rsk"},
	}
}

func TestInvoke_RelaysProgressThenResult(t *testing.T) {
	w := &fakeWorker{
		progress: []models.ProgressEvent{
			{ProgressPercentage: 0, StatusMessage: "Opening", ProcessingState: models.StateProcessing},
			{ProgressPercentage: 60, StatusMessage: "Filtering", ProcessingState: models.StateProcessing},
		},
		result: &models.InvocationResult{
			Status: models.StatusSuccess,
			Report: models.Report{ProcessedData: []models.Row{{"depth": 1.2}}},
		},
	}
	c := startWorker(t, w, secret)

	var got []models.ProgressEvent
	res, err := c.Invoke(context.Background(), ctdRequest(), func(ev models.ProgressEvent) {
		got = append(got, ev)
	})
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	assert.Equal(t, []models.Row{{"depth": 1.2}}, res.Report.ProcessedData)
	assert.Equal(t, w.progress, got)
	assert.Equal(t, ctdRequest(), w.gotReq)
	assert.Equal(t, []string{"agent-test"}, w.subjects)
}

func TestInvoke_NoResult(t *testing.T) {
	c := startWorker(t, &fakeWorker{}, secret)

	_, err := c.Invoke(context.Background(), ctdRequest(), nil)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestInvoke_MapsErrors(t *testing.T) {
	c := startWorker(t, &fakeWorker{}, []byte("wrong"))
	_, err := c.Invoke(context.Background(), ctdRequest(), nil)
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	c = startWorker(t, &fakeWorker{err: status.Error(codes.InvalidArgument, "bad file")}, secret)
	_, err = c.Invoke(context.Background(), ctdRequest(), nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestPing(t *testing.T) {
	c := startWorker(t, &fakeWorker{}, secret)
	require.NoError(t, c.Ping(context.Background()))
}

func largeResult(rows int) *models.InvocationResult {
	read := strings.Repeat("ACGT", 256)
	data := make([]models.Row, rows)
	for i := range data {
		data[i] = models.Row{"sequence": read}
	}
	return &models.InvocationResult{Status: models.StatusSuccess, Report: models.Report{RawData: data}}
}

func TestInvoke_ResultAboveGRPCDefaultLimit(t *testing.T) {
	// ~6 MB in one result frame, above gRPC's 4 MB receive default.
	c := startWorker(t, &fakeWorker{result: largeResult(6000)}, secret)

	res, err := c.Invoke(context.Background(), ctdRequest(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Report.RawData, 6000)
}

func TestInvoke_ConfiguredMessageLimit(t *testing.T) {
	c := startWorker(t, &fakeWorker{result: largeResult(6000)}, secret, WithMaxMessageSize(1<<20))

	_, err := c.Invoke(context.Background(), ctdRequest(), nil)
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Equal(t, 1, strings.Count(err.Error(), "rpc error"))
	assert.True(t, strings.HasPrefix(err.Error(), "worker call: "))
}
