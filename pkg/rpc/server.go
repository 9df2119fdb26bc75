package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/athulya-anil/axon-orchestrator/pkg/ledger"
	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

// Service is the subset of coordinator operations served over gRPC.
type Service interface {
	SubmitJob(ctx context.Context, payload json.RawMessage) string
	ClaimJob(ctx context.Context, workerID string) (models.Job, bool)
	CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error
	Heartbeat(ctx context.Context, workerID string) time.Time
}

// Server implements CoordinatorServer on top of a Service.
type Server struct {
	svc Service
}

var _ CoordinatorServer = (*Server)(nil)

// NewServer creates a gRPC handler for svc.
func NewServer(svc Service) *Server {
	return &Server{svc: svc}
}

// NewGRPCServer builds a grpc.Server with logging and panic recovery
// and the coordinator service registered.
func NewGRPCServer(svc Service, logger *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		LoggingInterceptor(logger),
		RecoverInterceptor(logger),
	))
	s := grpc.NewServer(opts...)
	RegisterCoordinatorServer(s, NewServer(svc))
	return s
}

// Submit queues a job.
func (s *Server) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if !isObject(req.Payload) {
		return nil, status.Error(codes.InvalidArgument, "payload must be a JSON object")
	}
	id := s.svc.SubmitJob(ctx, req.Payload)
	return &SubmitResponse{JobID: id, Status: string(models.StatusQueued)}, nil
}

// Claim hands the oldest queued job to the worker.
func (s *Server) Claim(ctx context.Context, req *ClaimRequest) (*ClaimResponse, error) {
	if req.WorkerID == "" {
		return nil, status.Error(codes.InvalidArgument, "worker_id is required")
	}
	j, ok := s.svc.ClaimJob(ctx, req.WorkerID)
	if !ok {
		return &ClaimResponse{Found: false}, nil
	}
	return &ClaimResponse{Found: true, JobID: j.ID, Payload: j.Payload}, nil
}

// Complete stores a job result.
func (s *Server) Complete(ctx context.Context, req *CompleteRequest) (*CompleteResponse, error) {
	if req.JobID == "" {
		return nil, status.Error(codes.InvalidArgument, "job_id is required")
	}
	if !isObject(req.Result) {
		return nil, status.Error(codes.InvalidArgument, "result must be a JSON object")
	}
	if err := s.svc.CompleteJob(ctx, req.JobID, req.Result); err != nil {
		if errors.Is(err, ledger.ErrJobNotFound) {
			return nil, status.Error(codes.NotFound, "invalid job_id")
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &CompleteResponse{Status: "stored"}, nil
}

// Heartbeat records worker contact.
func (s *Server) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	if req.WorkerID == "" {
		return nil, status.Error(codes.InvalidArgument, "worker_id is required")
	}
	seen := s.svc.Heartbeat(ctx, req.WorkerID)
	return &HeartbeatResponse{Acknowledged: true, LastSeen: seen}, nil
}

// LoggingInterceptor logs one line per RPC with its status code and latency.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		level := slog.LevelInfo
		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "grpc request",
			slog.String("method", info.FullMethod),
			slog.String("code", code.String()),
			slog.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}

// RecoverInterceptor turns handler panics into codes.Internal errors.
func RecoverInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc handler panicked",
					slog.String("method", info.FullMethod),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = status.Error(codes.Internal, fmt.Sprintf("panic: %v", r))
			}
		}()
		return handler(ctx, req)
	}
}

func isObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &obj) != nil {
		return false
	}
	return obj != nil
}
