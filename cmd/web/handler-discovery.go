package main

import (
	"net/http"

	"github.com/myrjola/coachline/internal/models"
)

type answerRequest struct {
	// Key defaults to the current question.
	Key   string             `json:"key"`
	Value models.AnswerValue `json:"value"`
}

func (app *application) discoveryStatus(w http.ResponseWriter, r *http.Request) {
	app.writeData(w, r, app.coachSession(r).DiscoveryStatus())
}

func (app *application) startDiscovery(w http.ResponseWriter, r *http.Request) {
	app.writeData(w, r, app.coachSession(r).StartDiscovery(r.Context()))
}

func (app *application) pauseDiscovery(w http.ResponseWriter, r *http.Request) {
	app.writeData(w, r, app.coachSession(r).PauseDiscovery(r.Context()))
}

func (app *application) answerDiscovery(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	result, err := app.coachSession(r).AnswerDiscovery(r.Context(), req.Key, req.Value)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeData(w, r, result)
}
