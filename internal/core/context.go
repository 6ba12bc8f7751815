package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "client_ua"
)

// ContextWithIPAddress adds the client IP to context for analysis history.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the client User-Agent to context for analysis history.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// RequestMetadata identifies the client that triggered an operation.
type RequestMetadata struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// MetadataFromContext extracts the client metadata stored in ctx.
func MetadataFromContext(ctx context.Context) RequestMetadata {
	var m RequestMetadata
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		m.IPAddress = v
	}
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		m.UserAgent = v
	}
	return m
}
