package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sumitx99/ethical-web-watchdog/internal/message"
)

// ObserverServiceName is the gRPC service observers implement. Its single
// unary method takes a google.protobuf.Struct holding the JSON form of a
// message.Envelope and returns google.protobuf.Empty.
const ObserverServiceName = "watchdog.observer.v1.Observer"

const deliverMethod = "/" + ObserverServiceName + "/Deliver"

// ObserverServer is the server side of the observer service.
type ObserverServer interface {
	Deliver(ctx context.Context, msg *structpb.Struct) (*emptypb.Empty, error)
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ObserverServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deliverMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ObserverServer).Deliver(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var observerServiceDesc = grpc.ServiceDesc{
	ServiceName: ObserverServiceName,
	HandlerType: (*ObserverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "watchdog/observer/v1/observer.proto",
}

func RegisterObserverServer(s grpc.ServiceRegistrar, srv ObserverServer) {
	s.RegisterService(&observerServiceDesc, srv)
}

// ObserverFunc adapts a plain function to ObserverServer.
type ObserverFunc func(ctx context.Context, msg message.Envelope) error

func (f ObserverFunc) Deliver(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	env, err := EnvelopeFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := f(ctx, env); err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &emptypb.Empty{}, nil
}

// NewObserverGRPCServer builds a gRPC server exposing fn as the observer
// service, with the standard health service reporting it as serving.
func NewObserverGRPCServer(fn ObserverFunc, logger *zap.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAgeGrace: 10 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(4*1024*1024),
	)
	RegisterObserverServer(srv, fn)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus(ObserverServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(srv)

	logger.Debug("observer grpc server built", zap.String("service", ObserverServiceName))
	return srv, healthServer
}

// EnvelopeToStruct converts msg to its wire form.
func EnvelopeToStruct(msg message.Envelope) (*structpb.Struct, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("EnvelopeToStruct: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("EnvelopeToStruct: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("EnvelopeToStruct: %w", err)
	}
	return s, nil
}

// EnvelopeFromStruct is the inverse of EnvelopeToStruct.
func EnvelopeFromStruct(s *structpb.Struct) (message.Envelope, error) {
	var env message.Envelope
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return env, fmt.Errorf("EnvelopeFromStruct: %w", err)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("EnvelopeFromStruct: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("EnvelopeFromStruct: missing type")
	}
	return env, nil
}
