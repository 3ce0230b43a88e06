package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/storage"
	"github.com/myrjola/coachline/internal/storage/remote"
	"github.com/myrjola/coachline/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *remote.Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger, _ := testhelpers.NewBufferedLogger(t)
	return remote.New(srv.URL+"/", "user-1", srv.Client(), logger)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestBackend_ListConversations(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/store/conversations", r.URL.Path)
		assert.Equal(t, "user-1", r.Header.Get(storage.IdentityHeader))
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"conversations":[
			{"id":"c2","title":"Second","created_date":"2024-02-01T00:00:00Z"},
			{"id":"c1","title":"First","created_date":"2024-01-01T00:00:00Z"}]}}`)
	})

	env, err := backend.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, env.Data.Conversations, 2)
	require.Equal(t, "c2", env.Data.Conversations[0].ID)
}

func TestBackend_ListMessagesPagination(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "c1", query.Get("conversation_id"))
		assert.Equal(t, "2024-01-01T00:00:00Z", query.Get("cursor"))
		assert.Equal(t, "2", query.Get("limit"))
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"messages":[
			{"id":"m3","conversation_id":"c1","text":"hi","sender":"user","created_date":"2024-01-01T00:00:01Z"},
			{"id":"m4","conversation_id":"c1","text":"hello","sender":"assistant","created_date":"2024-01-01T00:00:02Z",
			 "metadata":{"kind":"base","response":{"ai_response_text":"hello"}}}],
			"hasMore":true,"nextCursor":"2024-01-01T00:00:02Z"}}`)
	})

	env, err := backend.ListMessages(context.Background(), storage.MessageQuery{
		ConversationID: "c1", Cursor: "2024-01-01T00:00:00Z", Limit: 2,
	})
	require.NoError(t, err)
	require.True(t, env.Data.HasMore)
	require.Equal(t, "2024-01-01T00:00:02Z", env.Data.NextCursor)
	require.Len(t, env.Data.Messages, 2)

	resp, err := models.ResponseFromMetadata(env.Data.Messages[1].Metadata)
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Text())
}

func TestBackend_CreateMessageSendsMetadataAsJSON(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `{"kind":"base"}`, string(body["metadata"]))
		writeJSON(w, http.StatusCreated, `{"success":true,"data":{"message":
			{"id":"m1","conversation_id":"c1","text":"hi","sender":"assistant","created_date":"2024-01-01T00:00:00Z"}}}`)
	})

	env, err := backend.CreateMessage(context.Background(), storage.MessageInput{
		ConversationID: "c1", Text: "hi", Sender: models.SenderAssistant, Metadata: []byte(`{"kind":"base"}`),
	})
	require.NoError(t, err)
	require.NotNil(t, env.Data.Message)
	require.Equal(t, "m1", env.Data.Message.ID)
}

func TestBackend_RequestError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "server message",
			status:      http.StatusForbidden,
			body:        `{"success":false,"error":"not your conversation"}`,
			wantStatus:  http.StatusForbidden,
			wantMessage: "not your conversation",
		},
		{
			name:        "plain text body",
			status:      http.StatusBadGateway,
			body:        `upstream unavailable`,
			wantStatus:  http.StatusBadGateway,
			wantMessage: "",
		},
		{
			name:        "success flag false",
			status:      http.StatusOK,
			body:        `{"success":false,"error":"quota"}`,
			wantStatus:  http.StatusOK,
			wantMessage: "quota",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := backend.DeleteConversation(context.Background(), "c1")
			require.Error(t, err)
			var requestErr *storage.RequestError
			require.True(t, errors.As(err, &requestErr))
			require.Equal(t, tt.wantStatus, requestErr.StatusCode)
			require.Equal(t, tt.wantMessage, requestErr.Message)
		})
	}
}

func TestBackend_UpdateProfile(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var profile models.Profile
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&profile))
		assert.Equal(t, models.DiscoveryPaused, profile.Discovery.Status)
		out, _ := json.Marshal(map[string]any{"success": true, "data": map[string]any{"profile": profile}})
		writeJSON(w, http.StatusOK, string(out))
	})

	state := models.NewDiscoveryState()
	state.Status = models.DiscoveryPaused
	state.Answers["niche"] = models.SingleAnswer("yoga")
	env, err := backend.UpdateProfile(context.Background(), models.Profile{Niche: "", Experience: "", Discovery: state})
	require.NoError(t, err)
	require.Equal(t, state, env.Data.Profile.Discovery)
}
