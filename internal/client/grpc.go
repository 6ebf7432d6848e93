package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/rpc"
)

// GRPCClient implements RegistryClient using the gRPC transport.
type GRPCClient struct {
	conn   *grpc.ClientConn
	client *rpc.RegistryClient
	token  string
}

// Compile-time check that GRPCClient implements RegistryClient.
var _ RegistryClient = (*GRPCClient)(nil)

// NewGRPCClient connects to the given gRPC address and returns a client.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{
		conn:   conn,
		client: rpc.NewRegistryClient(conn),
		token:  token,
	}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) call(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	out, err := c.client.Call(ctx, method, in)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%s: %w", status.Convert(err).Message(), model.ErrNotFound)
	}
	return out, err
}

func (c *GRPCClient) session(ctx context.Context, method string, in *structpb.Struct) (*model.Session, error) {
	out, err := c.call(ctx, method, in)
	if err != nil {
		return nil, err
	}
	return rpc.StructToSession(out)
}

func (c *GRPCClient) Lookup(ctx context.Context, sessionID string) (*model.Session, error) {
	return c.session(ctx, rpc.MethodLookup, rpc.Fields(map[string]string{rpc.FieldSessionID: sessionID}))
}

func (c *GRPCClient) FindByOwner(ctx context.Context, ownerUserID string) (*model.Session, error) {
	return c.session(ctx, rpc.MethodFindByOwner, rpc.Fields(map[string]string{rpc.FieldOwnerUserID: ownerUserID}))
}

func (c *GRPCClient) Exists(ctx context.Context, sessionID string) (bool, error) {
	out, err := c.call(ctx, rpc.MethodExists, rpc.Fields(map[string]string{rpc.FieldSessionID: sessionID}))
	if err != nil {
		return false, err
	}
	return rpc.BoolField(out, rpc.FieldExists), nil
}

func (c *GRPCClient) Share(ctx context.Context, s *model.Session) (*model.Session, error) {
	in, err := rpc.SessionToStruct(s)
	if err != nil {
		return nil, err
	}
	return c.session(ctx, rpc.MethodShare, in)
}

func (c *GRPCClient) Update(ctx context.Context, s *model.Session) (*model.Session, error) {
	in, err := rpc.SessionToStruct(s)
	if err != nil {
		return nil, err
	}
	return c.session(ctx, rpc.MethodUpdate, in)
}

func (c *GRPCClient) Clear(ctx context.Context, ownerUserID string) error {
	_, err := c.call(ctx, rpc.MethodClear, rpc.Fields(map[string]string{rpc.FieldOwnerUserID: ownerUserID}))
	return err
}

func (c *GRPCClient) Transfer(ctx context.Context, sessionID, newOwner string) (*model.Session, error) {
	return c.session(ctx, rpc.MethodTransfer, rpc.Fields(map[string]string{
		rpc.FieldSessionID:   sessionID,
		rpc.FieldOwnerUserID: newOwner,
	}))
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: rpc.ServiceName})
	if err != nil {
		return "", err
	}
	return resp.GetStatus().String(), nil
}
