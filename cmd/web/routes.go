package main

import (
	"net/http"

	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/healthy", app.healthy)

	// The coach API serves the browser, so it runs on cookie sessions with CSRF protection.
	session := alice.New(app.sessionManager.LoadAndSave, app.identify, app.noSurf, app.device)

	mux.Handle("GET /api/session", session.ThenFunc(app.session))

	mux.Handle("GET /api/conversations", session.ThenFunc(app.listConversations))
	mux.Handle("POST /api/conversations", session.ThenFunc(app.newConversation))
	mux.Handle("POST /api/conversations/{id}/switch", session.ThenFunc(app.switchConversation))
	mux.Handle("PATCH /api/conversations/{id}", session.ThenFunc(app.renameConversation))
	mux.Handle("DELETE /api/conversations/{id}", session.ThenFunc(app.deleteConversation))

	mux.Handle("POST /api/chat", session.ThenFunc(app.sendMessage))
	mux.Handle("POST /api/chat/regenerate", session.ThenFunc(app.regenerateMessage))

	mux.Handle("GET /api/discovery", session.ThenFunc(app.discoveryStatus))
	mux.Handle("POST /api/discovery/start", session.ThenFunc(app.startDiscovery))
	mux.Handle("POST /api/discovery/answer", session.ThenFunc(app.answerDiscovery))
	mux.Handle("POST /api/discovery/pause", session.ThenFunc(app.pauseDiscovery))

	// The store API is called server to server with the identity header, so there are no cookies to protect.
	store := alice.New(app.identify, app.requireIdentity)

	mux.Handle("GET /api/store/conversations", store.ThenFunc(app.storeListConversations))
	mux.Handle("POST /api/store/conversations", store.ThenFunc(app.storeCreateConversation))
	mux.Handle("PATCH /api/store/conversations/{id}", store.ThenFunc(app.storeUpdateConversation))
	mux.Handle("DELETE /api/store/conversations/{id}", store.ThenFunc(app.storeDeleteConversation))

	mux.Handle("GET /api/store/messages", store.ThenFunc(app.storeListMessages))
	mux.Handle("POST /api/store/messages", store.ThenFunc(app.storeCreateMessage))
	mux.Handle("PATCH /api/store/messages/{id}", store.ThenFunc(app.storeUpdateMessage))

	mux.Handle("GET /api/store/profile", store.ThenFunc(app.storeGetProfile))
	mux.Handle("PUT /api/store/profile", store.ThenFunc(app.storeUpdateProfile))

	mux.Handle("/", http.HandlerFunc(app.notFound))

	common := alice.New(app.recoverPanic, app.logRequest, secureHeaders)
	return common.Then(timeoutHandler(mux, app.requestTimeout))
}
