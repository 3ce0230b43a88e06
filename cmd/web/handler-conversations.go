package main

import (
	"net/http"

	"github.com/myrjola/coachline/internal/models"
)

type conversationRequest struct {
	Title string `json:"title"`
}

func (app *application) listConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := app.coachSession(r).ListConversations(r.Context())
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	app.writeData(w, r, map[string]any{"conversations": conversations})
}

func (app *application) newConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	if req.Title == "" {
		req.Title = "New chat"
	}
	conversation, err := app.coachSession(r).NewConversation(r.Context(), req.Title)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeData(w, r, map[string]any{"conversation": conversation})
}

func (app *application) switchConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	messages, err := app.coachSession(r).SwitchConversation(r.Context(), id)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	app.writeData(w, r, map[string]any{"conversationId": id, "messages": messages})
}

func (app *application) renameConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	if req.Title == "" {
		app.clientError(w, r, http.StatusBadRequest, "title is required")
		return
	}
	conversation, err := app.coachSession(r).RenameConversation(r.Context(), r.PathValue("id"), req.Title)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeData(w, r, map[string]any{"conversation": conversation})
}

func (app *application) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := app.coachSession(r).DeleteConversation(r.Context(), id); err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeData(w, r, map[string]any{"id": id})
}
