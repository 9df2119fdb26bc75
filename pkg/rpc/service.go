// Package rpc exposes the coordinator's worker protocol over gRPC.
//
// Messages are plain Go structs encoded with a JSON codec registered under
// the "json" content-subtype, so no generated protobuf code is needed.
package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "axon.v1.Coordinator"

const (
	submitMethod    = "/" + serviceName + "/Submit"
	claimMethod     = "/" + serviceName + "/Claim"
	completeMethod  = "/" + serviceName + "/Complete"
	heartbeatMethod = "/" + serviceName + "/Heartbeat"
)

// CoordinatorServer is the server API for the coordinator service.
type CoordinatorServer interface {
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	Claim(context.Context, *ClaimRequest) (*ClaimResponse, error)
	Complete(context.Context, *CompleteRequest) (*CompleteResponse, error)
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
}

// RegisterCoordinatorServer registers srv on s.
func RegisterCoordinatorServer(s grpc.ServiceRegistrar, srv CoordinatorServer) {
	s.RegisterService(&coordinatorServiceDesc, srv)
}

var coordinatorServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CoordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: unaryHandler(submitMethod, CoordinatorServer.Submit)},
		{MethodName: "Claim", Handler: unaryHandler(claimMethod, CoordinatorServer.Claim)},
		{MethodName: "Complete", Handler: unaryHandler(completeMethod, CoordinatorServer.Complete)},
		{MethodName: "Heartbeat", Handler: unaryHandler(heartbeatMethod, CoordinatorServer.Heartbeat)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "axon/v1/coordinator",
}

// unaryHandler adapts a typed server method to grpc's method handler shape.
func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(CoordinatorServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CoordinatorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CoordinatorServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
