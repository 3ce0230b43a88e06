package contexthelpers

import (
	"context"

	"github.com/myrjola/coachline/internal/storage"
)

// Identity returns the identity forwarded by the embedding host, or the anonymous sentinel.
func Identity(ctx context.Context) string {
	identity, ok := ctx.Value(identityContextKey).(string)
	if !ok || identity == "" {
		return storage.AnonymousIdentity
	}

	return identity
}

func IsAuthenticated(ctx context.Context) bool {
	return storage.IsRealIdentity(Identity(ctx))
}

func DeviceID(ctx context.Context) string {
	deviceID, ok := ctx.Value(deviceIDContextKey).(string)
	if !ok {
		return ""
	}

	return deviceID
}

func CSRFToken(ctx context.Context) string {
	csrfToken, ok := ctx.Value(csrfTokenContextKey).(string)
	if !ok {
		return ""
	}

	return csrfToken
}
