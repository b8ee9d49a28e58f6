package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"noorstitching.org/internal/obs"
)

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	actorKey     ctxKey = "audit_actor"
	clientIDKey  ctxKey = "audit_client_id"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithActor records the user acting in ctx.
func WithActor(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey, userID)
}

// WithClientID records the browser or terminal client the request belongs to.
func WithClientID(ctx context.Context, clientID string) context.Context {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIDKey, clientID)
}

// RequestID returns the request identifier stored by WithRequestID.
func RequestID(ctx context.Context) string { return stringValue(ctx, requestIDKey) }

// ClientID returns the client identifier stored by WithClientID.
func ClientID(ctx context.Context) string { return stringValue(ctx, clientIDKey) }

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request, client and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zf := make([]zap.Field, 0, 5)
	zf = append(zf, zap.String("type", "audit"), zap.String("event", event))
	if rid := RequestID(ctx); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if cid := ClientID(ctx); cid != "" {
		zf = append(zf, zap.String("client_id", cid))
	}
	if uid := stringValue(ctx, actorKey); uid != "" {
		zf = append(zf, zap.String("user_id", uid))
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	zf = append(zf, zap.Any("fields", copyFields))

	obs.Logger().Info("audit", zf...)
	return nil
}
