package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/viewshare/internal/rpc"
)

// requestSessionID pulls the session id out of a registry request, if any.
func requestSessionID(req any) string {
	if in, ok := req.(*structpb.Struct); ok {
		return rpc.StringField(in, rpc.FieldSessionID)
	}
	return ""
}

// LoggingInterceptor logs every unary call with its duration and status.
// Lookups that miss are routine and logged at info.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		attrs := []any{"method", info.FullMethod, "duration", time.Since(start)}
		if id := requestSessionID(req); id != "" {
			attrs = append(attrs, "session_id", id)
		}
		switch code := status.Code(err); code {
		case codes.OK:
			logger.Info("grpc: rpc completed", attrs...)
		case codes.NotFound, codes.InvalidArgument:
			logger.Info("grpc: rpc completed", append(attrs, "code", code)...)
		default:
			logger.Error("grpc: rpc failed", append(attrs, "code", code, "error", err)...)
		}
		return resp, err
	}
}

// RecoveryInterceptor turns a panic in a handler into codes.Internal.
func RecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc: panic recovered in handler",
					"method", info.FullMethod,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// checkBearer validates an Authorization value against token and returns
// the rejection reason, or "" when it matches.
func checkBearer(value, token string) string {
	switch {
	case value == "":
		return "missing authorization header"
	case !strings.HasPrefix(value, "Bearer "):
		return "invalid authorization scheme"
	case subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(value, "Bearer ")), []byte(token)) != 1:
		return "invalid token"
	}
	return ""
}

// AuthInterceptor checks the "authorization" metadata for a Bearer token.
// An empty token disables auth. The health service is always exempt.
func AuthInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" || strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		var value string
		if vals := md.Get("authorization"); len(vals) > 0 {
			value = vals[0]
		}
		if reason := checkBearer(value, token); reason != "" {
			return nil, status.Error(codes.Unauthenticated, reason)
		}
		return handler(ctx, req)
	}
}

// streamingPath reports whether path is a browser stream (websocket or
// event source). Browsers cannot set headers on those, so they may pass
// the token as ?access_token= instead.
func streamingPath(path string) bool {
	return strings.HasSuffix(path, "/ws") || strings.HasSuffix(path, "/events")
}

// AuthMiddleware checks the Authorization header for a Bearer token. An
// empty token disables auth. GET /v1/health is always exempt.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/v1/health" {
			next.ServeHTTP(w, r)
			return
		}
		value := r.Header.Get("Authorization")
		if value == "" && streamingPath(r.URL.Path) {
			if q := r.URL.Query().Get("access_token"); q != "" {
				value = "Bearer " + q
			}
		}
		if reason := checkBearer(value, token); reason != "" {
			writeError(w, http.StatusUnauthorized, reason)
			return
		}
		next.ServeHTTP(w, r)
	})
}
