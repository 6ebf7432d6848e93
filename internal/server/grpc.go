package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/alfredjeanlab/viewshare/internal/rpc"
)

// NewGRPCServer creates a gRPC server with standard interceptors,
// registers the registry service, health and reflection, and returns the
// server ready to serve.
func NewGRPCServer(registryServer *RegistryServer, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(registryServer.logger),
			LoggingInterceptor(registryServer.logger),
			AuthInterceptor(authToken),
		),
	)

	rpc.RegisterRegistryServer(srv, registryServer)

	hs := health.NewServer()
	hs.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)

	return srv
}
