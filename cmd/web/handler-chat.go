package main

import (
	"net/http"
)

type sendMessageRequest struct {
	// ConversationID is empty to continue the active conversation or start a new one.
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

type regenerateRequest struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

func (app *application) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	exchange, err := app.coachSession(r).SendMessage(r.Context(), req.ConversationID, req.Text)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeData(w, r, exchange)
}

func (app *application) regenerateMessage(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	if req.ConversationID == "" || req.MessageID == "" {
		app.clientError(w, r, http.StatusBadRequest, "conversationId and messageId are required")
		return
	}
	message, err := app.coachSession(r).RegenerateMessage(r.Context(), req.ConversationID, req.MessageID)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeData(w, r, map[string]any{"message": message})
}
