package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errInternal = status.Error(codes.Internal, "internal server error")

// UnaryServerInterceptor logs each call, turns panics into codes.Internal
// and bounds calls that arrive without a deadline.
func UnaryServerInterceptor(log *slog.Logger, guard time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		if _, ok := ctx.Deadline(); !ok && guard > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, guard)
			defer cancel()
		}
		defer observe(ctx, log, "unary", info.FullMethod, time.Now(), &err)

		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart; health Watch uses it.
func StreamServerInterceptor(log *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer observe(ss.Context(), log, "stream", info.FullMethod, time.Now(), &err)

		return handler(srv, ss)
	}
}

// observe must be deferred directly so recover sees the handler's panic.
func observe(ctx context.Context, log *slog.Logger, kind, method string, start time.Time, err *error) {
	if r := recover(); r != nil {
		log.ErrorContext(ctx, "grpc handler panic",
			slog.String("kind", kind),
			slog.String("method", method),
			slog.Any("panic", r),
			slog.String("stack", string(debug.Stack())))
		*err = errInternal
	}

	level := slog.LevelDebug
	if *err != nil && status.Code(*err) == codes.Internal {
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "grpc call",
		slog.String("kind", kind),
		slog.String("method", method),
		slog.String("code", status.Code(*err).String()),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}
