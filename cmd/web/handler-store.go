package main

import (
	"log/slog"
	"net/http"

	"github.com/myrjola/coachline/internal/contexthelpers"
	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/repositories"
	"github.com/myrjola/coachline/internal/storage"
)

// The store handlers implement the remote persistence API used by authenticated sessions. Updates of missing
// records succeed with a null record, matching the storage contract.

func (app *application) storeListConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversations, err := app.conversations.List(ctx, contexthelpers.Identity(ctx))
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	app.writeData(w, r, map[string]any{"conversations": conversations})
}

func (app *application) storeCreateConversation(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context()
		in  storage.ConversationInput
	)
	if err := decodeJSON(w, r, &in); err != nil {
		app.handleError(w, r, err)
		return
	}
	conversation, err := app.conversations.Create(ctx, contexthelpers.Identity(ctx), in.Title)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeData(w, r, map[string]any{"conversation": conversation})
}

func (app *application) storeUpdateConversation(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context()
		in  storage.ConversationInput
	)
	if err := decodeJSON(w, r, &in); err != nil {
		app.handleError(w, r, err)
		return
	}
	conversation, err := app.conversations.Update(ctx, contexthelpers.Identity(ctx), r.PathValue("id"), in.Title)
	if errors.Is(err, repositories.ErrNotFound) {
		app.writeData(w, r, map[string]any{"conversation": nil})
		return
	}
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeData(w, r, map[string]any{"conversation": conversation})
}

func (app *application) storeDeleteConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := app.conversations.Delete(ctx, contexthelpers.Identity(ctx), id); err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeData(w, r, map[string]any{"id": id})
}

func (app *application) storeListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	conversationID := query.Get("conversation_id")
	if conversationID == "" {
		app.clientError(w, r, http.StatusBadRequest, "conversation_id is required")
		return
	}
	page, err := app.messages.List(ctx, contexthelpers.Identity(ctx), conversationID, query.Get("cursor"),
		repositories.ParseLimit(query.Get("limit")))
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	data := map[string]any{"messages": page.Messages, "hasMore": page.HasMore}
	if page.NextCursor != "" {
		data["nextCursor"] = page.NextCursor
	}
	app.writeData(w, r, data)
}

func validSender(sender models.Sender) bool {
	return sender == models.SenderUser || sender == models.SenderAssistant
}

func (app *application) storeCreateMessage(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context()
		in  storage.MessageInput
	)
	if err := decodeJSON(w, r, &in); err != nil {
		app.handleError(w, r, err)
		return
	}
	if in.ConversationID == "" || !validSender(in.Sender) {
		app.clientError(w, r, http.StatusBadRequest, "conversation_id and a valid sender are required")
		return
	}
	message, err := app.messages.Create(ctx, contexthelpers.Identity(ctx), in.ConversationID, in.Text, in.Sender,
		in.Metadata)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeData(w, r, map[string]any{"message": message})
}

func (app *application) storeUpdateMessage(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context()
		in  storage.MessageInput
		id  = r.PathValue("id")
	)
	if err := decodeJSON(w, r, &in); err != nil {
		app.handleError(w, r, err)
		return
	}
	message, err := app.messages.Update(ctx, contexthelpers.Identity(ctx), id, in.Text, in.Metadata)
	if errors.Is(err, repositories.ErrNotFound) {
		app.logger.LogAttrs(ctx, slog.LevelDebug, "update of missing message", slog.String("message_id", id))
		app.writeData(w, r, map[string]any{"message": nil})
		return
	}
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeData(w, r, map[string]any{"message": message})
}

func (app *application) storeGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := app.profiles.Get(ctx, contexthelpers.Identity(ctx))
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeData(w, r, map[string]any{"profile": profile})
}

func (app *application) storeUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var (
		ctx     = r.Context()
		profile models.Profile
	)
	if err := decodeJSON(w, r, &profile); err != nil {
		app.handleError(w, r, err)
		return
	}
	if profile.Discovery.Status == "" {
		profile.Discovery = models.NewDiscoveryState()
	}
	if profile.Discovery.Answers == nil {
		profile.Discovery.Answers = map[string]models.AnswerValue{}
	}
	if err := app.profiles.Upsert(ctx, contexthelpers.Identity(ctx), profile); err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeData(w, r, map[string]any{"profile": profile})
}
