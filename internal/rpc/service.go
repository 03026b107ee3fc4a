// Package rpc serves cut-tree evaluation over gRPC. Messages are
// google.protobuf.Struct values, so no generated stubs are needed.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
const (
	serviceName    = "cutflow.v1.Evaluator"
	evaluateMethod = "/" + serviceName + "/Evaluate"
)

// EvaluatorServer is the server API of the evaluation service.
//
// Request:  {"record": {...}, "syst": "JES_up"}
// Response: {"cuts": [{"name": "SR", "pass": true, "weight": 0.5}, ...]}
type EvaluatorServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EvaluatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cutflow/v1/evaluator.proto",
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EvaluatorServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: evaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EvaluatorServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Register attaches srv to a gRPC server.
func Register(r grpc.ServiceRegistrar, srv EvaluatorServer) {
	r.RegisterService(&serviceDesc, srv)
}

// #endregion service-desc
