package debugsvc

import (
	"context"
	"crypto/subtle"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenMetadataKey is the metadata entry carrying the debug token.
const TokenMetadataKey = "debug-token"

// TokenInterceptor rejects calls that don't carry token. An empty token
// accepts every call.
func TokenInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
	) (interface{}, error) {
		if token == "" {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		for _, got := range md.Get(TokenMetadataKey) {
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1 {
				return handler(ctx, req)
			}
		}
		return nil, status.Errorf(codes.Unauthenticated, "missing or invalid %s for %s", TokenMetadataKey, info.FullMethod)
	}
}

// WithToken attaches token to outgoing calls made with ctx.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, TokenMetadataKey, token)
}
