package contexthelpers

import (
	"context"
	"net/http"
)

func SetIdentity(r *http.Request, identity string) *http.Request {
	ctx := r.Context()
	ctx = context.WithValue(ctx, identityContextKey, identity)
	return r.WithContext(ctx)
}

func SetDeviceID(r *http.Request, deviceID string) *http.Request {
	ctx := r.Context()
	ctx = context.WithValue(ctx, deviceIDContextKey, deviceID)
	return r.WithContext(ctx)
}

func SetCSRFToken(r *http.Request, csrfToken string) *http.Request {
	ctx := r.Context()
	ctx = context.WithValue(ctx, csrfTokenContextKey, csrfToken)
	return r.WithContext(ctx)
}
