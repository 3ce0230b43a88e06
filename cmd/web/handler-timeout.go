package main

import (
	"net/http"
	"time"
)

const timeoutBody = `{"success":false,"error":"request timed out"}`

// timeoutHandler responds with a 503 Service Unavailable error when the handler does not meet the deadline.
func timeoutHandler(h http.Handler, timeout time.Duration) http.Handler {
	// The server's write timeout is a second longer, so the timeout handler has a chance to respond before the
	// server closes the connection.
	return http.TimeoutHandler(h, timeout, timeoutBody)
}
