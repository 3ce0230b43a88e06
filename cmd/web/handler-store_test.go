package main

import (
	"context"
	"net/http"
	"testing"

	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_storeRequiresIdentity(t *testing.T) {
	ctx := context.Background()
	_, client := startTestServer(t, newFakeModel(t, "hello"))

	tests := []struct {
		name     string
		identity string
	}{
		{name: "missing", identity: ""},
		{name: "anonymous sentinel", identity: storage.AnonymousIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client.SetIdentity(tt.identity)
			err := client.Do(ctx, http.MethodGet, "/api/store/conversations", nil, nil)
			requireStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func Test_storeAPI(t *testing.T) {
	ctx := context.Background()
	_, client := startTestServer(t, newFakeModel(t, "hello"))
	client.SetIdentity("user-1")

	var created struct {
		Conversation models.Conversation `json:"conversation"`
	}
	require.NoError(t, client.Do(ctx, http.MethodPost, "/api/store/conversations",
		storage.ConversationInput{Title: "Pricing"}, &created))
	assert.Equal(t, "Pricing", created.Conversation.Title)
	assert.NotEmpty(t, created.Conversation.CreatedDate)

	var message struct {
		Message *models.Message `json:"message"`
	}
	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, client.Do(ctx, http.MethodPost, "/api/store/messages", storage.MessageInput{
			ConversationID: created.Conversation.ID,
			Text:           text,
			Sender:         models.SenderUser,
			Metadata:       nil,
		}, &message))
	}

	t.Run("message pagination", func(t *testing.T) {
		var page struct {
			Messages   []models.Message `json:"messages"`
			HasMore    bool             `json:"hasMore"`
			NextCursor string           `json:"nextCursor"`
		}
		path := "/api/store/messages?limit=2&conversation_id=" + created.Conversation.ID
		require.NoError(t, client.Do(ctx, http.MethodGet, path, nil, &page))
		require.Len(t, page.Messages, 2)
		assert.True(t, page.HasMore)
		assert.Equal(t, page.Messages[1].CreatedDate, page.NextCursor)

		err := client.Do(ctx, http.MethodGet, path+"&cursor=not-a-date", nil, nil)
		requireStatus(t, err, http.StatusBadRequest)
		err = client.Do(ctx, http.MethodGet, "/api/store/messages", nil, nil)
		requireStatus(t, err, http.StatusBadRequest)
	})

	t.Run("invalid messages are refused", func(t *testing.T) {
		err := client.Do(ctx, http.MethodPost, "/api/store/messages", storage.MessageInput{
			ConversationID: created.Conversation.ID,
			Text:           "hi",
			Sender:         "robot",
			Metadata:       nil,
		}, nil)
		requireStatus(t, err, http.StatusBadRequest)

		err = client.Do(ctx, http.MethodPost, "/api/store/messages", storage.MessageInput{
			ConversationID: "missing",
			Text:           "hi",
			Sender:         models.SenderUser,
			Metadata:       nil,
		}, nil)
		requireStatus(t, err, http.StatusNotFound)
	})

	t.Run("updating missing records succeeds with null", func(t *testing.T) {
		require.NoError(t, client.Do(ctx, http.MethodPatch, "/api/store/messages/missing", storage.MessageInput{
			ConversationID: "",
			Text:           "x",
			Sender:         models.SenderAssistant,
			Metadata:       nil,
		}, &message))
		assert.Nil(t, message.Message)

		var updated struct {
			Conversation *models.Conversation `json:"conversation"`
		}
		require.NoError(t, client.Do(ctx, http.MethodPatch, "/api/store/conversations/missing",
			storage.ConversationInput{Title: "x"}, &updated))
		assert.Nil(t, updated.Conversation)
	})

	t.Run("profile", func(t *testing.T) {
		var out struct {
			Profile models.Profile `json:"profile"`
		}
		require.NoError(t, client.Do(ctx, http.MethodGet, "/api/store/profile", nil, &out))
		assert.Equal(t, models.DiscoveryNotStarted, out.Profile.Discovery.Status)

		profile := models.Profile{Niche: "yoga", Experience: "expert", Discovery: models.NewDiscoveryState()}
		require.NoError(t, client.Do(ctx, http.MethodPut, "/api/store/profile", profile, &out))
		require.NoError(t, client.Do(ctx, http.MethodGet, "/api/store/profile", nil, &out))
		assert.Equal(t, profile, out.Profile)
	})

	t.Run("delete cascades to messages", func(t *testing.T) {
		var deleted struct {
			ID string `json:"id"`
		}
		require.NoError(t, client.Do(ctx, http.MethodDelete, "/api/store/conversations/"+created.Conversation.ID,
			nil, &deleted))
		assert.Equal(t, created.Conversation.ID, deleted.ID)

		var page struct {
			Messages []models.Message `json:"messages"`
		}
		require.NoError(t, client.Do(ctx, http.MethodGet,
			"/api/store/messages?conversation_id="+created.Conversation.ID, nil, &page))
		assert.Empty(t, page.Messages)
	})
}
