package grpc

import (
	"context"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/rpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// StatusError marks a failed result frame.
const StatusError = "Error"

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "OK"})
}

// Process runs the processor for the request's data type. Processing errors
// become a failed result frame; only transport and request errors end the
// stream with a gRPC status.
func (s *GRPCServer) Process(in *structpb.Struct, stream rpc.ProcessServer) error {
	ctx := stream.Context()

	req, err := rpc.DecodeRequest(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	p, ok := s.processors[req.DataType]
	if !ok {
		return status.Errorf(codes.Unimplemented, "no processor for %s", req.DataType)
	}

	log := s.logger.With("sample_id", req.SampleID, "data_type", string(req.DataType), "caller", callerFromContext(ctx))
	log.Info(ctx, "Processing request", "files", len(req.Files))

	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	var sendErr error
	emit := func(pct int, msg string) {
		if sendErr != nil {
			return
		}
		frame, err := rpc.ProgressFrame(models.ProgressEvent{
			ProgressPercentage: pct,
			StatusMessage:      msg,
			ProcessingState:    models.StateProcessing,
		})
		if err == nil {
			err = stream.Send(frame)
		}
		sendErr = err
	}

	report, err := p.Process(ctx, req, emit)
	if sendErr != nil {
		log.Error(ctx, "failed to send progress", "error", sendErr)
		return sendErr
	}

	result := models.InvocationResult{Status: models.StatusSuccess, Report: report}
	if err != nil {
		log.Error(ctx, "processing failed", "error", err)
		result = models.InvocationResult{Status: StatusError, Error: err.Error()}
	} else {
		log.Info(ctx, "Processing finished",
			"raw_rows", len(report.RawData),
			"processed_rows", len(report.ProcessedData),
			"report_rows", len(report.ReportContent))
	}

	frame, err := rpc.ResultFrame(result)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.Send(frame)
}
