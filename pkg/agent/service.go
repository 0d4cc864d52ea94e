package agent

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "simdstress.v1.StressService"
	RunMethod   = "/" + ServiceName + "/Run"
)

// StressServer runs one workload per call and replies with the per-worker
// results. Messages are structpb.Struct, see codec.go for the field names.
type StressServer interface {
	Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func runHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StressServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StressServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes StressService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StressServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "simdstress/v1/stress",
}

// RegisterStressServer registers srv on s.
func RegisterStressServer(s grpc.ServiceRegistrar, srv StressServer) {
	s.RegisterService(&ServiceDesc, srv)
}
