package server

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/rpc"
)

// Compile-time check that RegistryServer implements rpc.RegistryServer.
var _ rpc.RegistryServer = (*RegistryServer)(nil)

// sessionReply encodes a registry result as a response struct.
func sessionReply(row *model.Session, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, grpcError(err)
	}
	out, err := rpc.SessionToStruct(row)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}

func requireField(req *structpb.Struct, key string) (string, error) {
	v := rpc.StringField(req, key)
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return v, nil
}

// Lookup returns the row of a session.
func (s *RegistryServer) Lookup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireField(req, rpc.FieldSessionID)
	if err != nil {
		return nil, err
	}
	return sessionReply(s.registry.Lookup(ctx, id))
}

// FindByOwner returns the session an owner shares.
func (s *RegistryServer) FindByOwner(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	owner, err := requireField(req, rpc.FieldOwnerUserID)
	if err != nil {
		return nil, err
	}
	return sessionReply(s.registry.FindByOwner(ctx, owner))
}

// Exists reports whether any row is left for a session.
func (s *RegistryServer) Exists(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireField(req, rpc.FieldSessionID)
	if err != nil {
		return nil, err
	}
	ok, err := s.registry.Exists(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		rpc.FieldExists: structpb.NewBoolValue(ok),
	}}, nil
}

// Share creates or replaces the owner's row.
func (s *RegistryServer) Share(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := rpc.StructToSession(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return sessionReply(s.registry.Share(ctx, in))
}

// Update rewrites the owner's row.
func (s *RegistryServer) Update(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := rpc.StructToSession(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return sessionReply(s.registry.Update(ctx, in))
}

// Clear deletes the owner's row.
func (s *RegistryServer) Clear(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.registry.Clear(ctx, rpc.StringField(req, rpc.FieldOwnerUserID)); err != nil {
		return nil, grpcError(err)
	}
	return &structpb.Struct{}, nil
}

// Transfer hands a session to another owner.
func (s *RegistryServer) Transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireField(req, rpc.FieldSessionID)
	if err != nil {
		return nil, err
	}
	return sessionReply(s.registry.Transfer(ctx, id, rpc.StringField(req, rpc.FieldOwnerUserID)))
}
