package contexthelpers

type contextKey string

const identityContextKey = contextKey("identity")
const deviceIDContextKey = contextKey("deviceID")
const csrfTokenContextKey = contextKey("csrfToken")
