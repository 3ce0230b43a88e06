package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/myrjola/coachline/internal/e2etest"
	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModel is an OpenAI compatible chat completion endpoint answering every request with reply.
type fakeModel struct {
	server *httptest.Server
	calls  atomic.Int32
}

func newFakeModel(t *testing.T, reply string) *fakeModel {
	t.Helper()
	m := &fakeModel{server: nil, calls: atomic.Int32{}}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		m.calls.Add(1)
		content, err := json.Marshal(map[string]any{"ai_response_text": reply})
		assert.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": string(content)},
			}},
		}))
	}))
	t.Cleanup(m.server.Close)
	return m
}

// testEnv returns the environment of a test server with an in-memory database and the fake model.
func testEnv(model *fakeModel) func(string) (string, bool) {
	return func(key string) (string, bool) {
		switch key {
		case "COACHLINE_ADDR":
			return "localhost:0", true
		case "COACHLINE_SQLITE_URL":
			return ":memory:", true
		case "OPENAI_API_KEY":
			return "test-key", true
		case "OPENAI_BASE_URL":
			return model.server.URL + "/v1", true
		case "COACHLINE_REQUEST_TIMEOUT":
			return "5s", true
		default:
			return "", false
		}
	}
}

// startTestServer starts the server and returns it together with a client acting as a fresh device.
func startTestServer(t *testing.T, model *fakeModel) (*e2etest.Server, *e2etest.Client) {
	t.Helper()
	_, logs := testhelpers.NewBufferedLogger(t)
	server, err := e2etest.StartServer(context.Background(), logs, testEnv(model), run)
	require.NoError(t, err)
	t.Cleanup(server.Stop)
	client, err := server.NewClient()
	require.NoError(t, err)
	return server, client
}

// requireStatus asserts that err is an API error with the given status.
func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var apiErr *e2etest.APIError
	require.True(t, errors.As(err, &apiErr), "expected an API error, got %v", err)
	require.Equal(t, status, apiErr.StatusCode, apiErr.Message)
}
