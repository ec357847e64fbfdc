package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	evaluateMethod     = "/" + ServiceName + "/Evaluate"
	runProgramMethod   = "/" + ServiceName + "/RunProgram"
	getRunMethod       = "/" + ServiceName + "/GetRun"
	listProgramsMethod = "/" + ServiceName + "/ListPrograms"
)

// RegisterCalculatorServer registers srv on s.
func RegisterCalculatorServer(s grpc.ServiceRegistrar, srv CalculatorServer) {
	s.RegisterService(&calculatorServiceDesc, srv)
}

var calculatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CalculatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "RunProgram", Handler: runProgramHandler},
		{MethodName: "GetRun", Handler: getRunHandler},
		{MethodName: "ListPrograms", Handler: listProgramsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "jitcalc/v1/calculator.proto",
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalculatorServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: evaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CalculatorServer).Evaluate(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func runProgramHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalculatorServer).RunProgram(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runProgramMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CalculatorServer).RunProgram(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalculatorServer).GetRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getRunMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CalculatorServer).GetRun(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listProgramsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalculatorServer).ListPrograms(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listProgramsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CalculatorServer).ListPrograms(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// CalculatorClient is the client API for the Calculator service.
type CalculatorClient struct {
	cc grpc.ClientConnInterface
}

// NewCalculatorClient creates a client on cc.
func NewCalculatorClient(cc grpc.ClientConnInterface) *CalculatorClient {
	return &CalculatorClient{cc: cc}
}

func (c *CalculatorClient) Evaluate(ctx context.Context, src string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, evaluateMethod, wrapperspb.String(src), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CalculatorClient) RunProgram(ctx context.Context, program string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, runProgramMethod, wrapperspb.String(program), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CalculatorClient) GetRun(ctx context.Context, name string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getRunMethod, wrapperspb.String(name), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CalculatorClient) ListPrograms(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listProgramsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
