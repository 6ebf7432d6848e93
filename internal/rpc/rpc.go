// Package rpc defines the viewshare.v1.Registry gRPC service. Requests and
// responses are google.protobuf.Struct values holding the JSON form of the
// model types, so the service needs no generated message code.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/viewshare/internal/model"
)

// ServiceName is the fully qualified registry service name.
const ServiceName = "viewshare.v1.Registry"

// Method names.
const (
	MethodLookup      = "Lookup"
	MethodFindByOwner = "FindByOwner"
	MethodExists      = "Exists"
	MethodShare       = "Share"
	MethodUpdate      = "Update"
	MethodClear       = "Clear"
	MethodTransfer    = "Transfer"
)

// Request and response field names.
const (
	FieldSessionID   = "sessionId"
	FieldOwnerUserID = "ownerUserId"
	FieldExists      = "exists"
)

// FullMethod returns the gRPC path of a registry method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// RegistryServer is the server API for the registry service.
type RegistryServer interface {
	Lookup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindByOwner(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Exists(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Share(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Clear(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(RegistryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RegistryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(RegistryServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc describes the registry service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodLookup, Handler: handler(MethodLookup, RegistryServer.Lookup)},
		{MethodName: MethodFindByOwner, Handler: handler(MethodFindByOwner, RegistryServer.FindByOwner)},
		{MethodName: MethodExists, Handler: handler(MethodExists, RegistryServer.Exists)},
		{MethodName: MethodShare, Handler: handler(MethodShare, RegistryServer.Share)},
		{MethodName: MethodUpdate, Handler: handler(MethodUpdate, RegistryServer.Update)},
		{MethodName: MethodClear, Handler: handler(MethodClear, RegistryServer.Clear)},
		{MethodName: MethodTransfer, Handler: handler(MethodTransfer, RegistryServer.Transfer)},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterRegistryServer registers srv on s.
func RegisterRegistryServer(s grpc.ServiceRegistrar, srv RegistryServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// RegistryClient calls the registry service over a client connection.
type RegistryClient struct {
	cc grpc.ClientConnInterface
}

// NewRegistryClient returns a client using cc.
func NewRegistryClient(cc grpc.ClientConnInterface) *RegistryClient {
	return &RegistryClient{cc: cc}
}

// Call invokes method with in and returns the response struct.
func (c *RegistryClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionToStruct encodes s in its JSON form.
func SessionToStruct(s *model.Session) (*structpb.Struct, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("converting session: %w", err)
	}
	return out, nil
}

// StructToSession decodes a session from its JSON form.
func StructToSession(st *structpb.Struct) (*model.Session, error) {
	data, err := protojson.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("converting session: %w", err)
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &s, nil
}

// Fields builds a request struct from string fields.
func Fields(kv map[string]string) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(kv))
	for k, v := range kv {
		fields[k] = structpb.NewStringValue(v)
	}
	return &structpb.Struct{Fields: fields}
}

// StringField returns a string field of st, or "".
func StringField(st *structpb.Struct, key string) string {
	return st.GetFields()[key].GetStringValue()
}

// BoolField returns a bool field of st, or false.
func BoolField(st *structpb.Struct, key string) bool {
	return st.GetFields()[key].GetBoolValue()
}
