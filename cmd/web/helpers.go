package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/myrjola/coachline/internal/ai"
	"github.com/myrjola/coachline/internal/coach"
	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/repositories"
	"github.com/myrjola/coachline/internal/storage"
	"github.com/sashabaranov/go-openai"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = errors.NewSentinel("invalid request body")

// response is the body of every API response.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, body response) {
	data, err := json.Marshal(body)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "encode response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (app *application) writeData(w http.ResponseWriter, r *http.Request, data any) {
	app.writeJSON(w, r, http.StatusOK, response{Success: true, Data: data, Error: ""})
}

// decodeJSON decodes the request body into dst. The error wraps errInvalidBody.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(errors.Join(errInvalidBody, err), "decode request body")
	}
	return nil
}

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error",
		slog.String("method", method), slog.String("uri", uri), errors.SlogError(err))
	app.writeJSON(w, r, http.StatusInternalServerError, response{
		Success: false,
		Data:    nil,
		Error:   http.StatusText(http.StatusInternalServerError),
	})
}

func (app *application) clientError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	app.logger.LogAttrs(r.Context(), slog.LevelDebug, http.StatusText(status), slog.String("error", msg))
	app.writeJSON(w, r, status, response{Success: false, Data: nil, Error: msg})
}

func (app *application) notFound(w http.ResponseWriter, r *http.Request) {
	app.clientError(w, r, http.StatusNotFound, http.StatusText(http.StatusNotFound))
}

// handleError responds with the status that matches err. Unknown errors are server errors.
func (app *application) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		requestErr *storage.RequestError
		apiErr     *openai.APIError
	)
	switch {
	case errors.As(err, &requestErr):
		status := requestErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "store request failed", errors.SlogError(err))
		app.clientError(w, r, status, requestErr.Error())
	case errors.Is(err, errInvalidBody):
		app.clientError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, coach.ErrEmptyMessage),
		errors.Is(err, coach.ErrInvalidAnswer),
		errors.Is(err, repositories.ErrInvalidCursor):
		app.clientError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, coach.ErrConversationNotFound),
		errors.Is(err, coach.ErrMessageNotFound),
		errors.Is(err, repositories.ErrNotFound):
		app.clientError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, coach.ErrBusy),
		errors.Is(err, coach.ErrDiscoveryNotInProgress):
		app.clientError(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &apiErr), errors.Is(err, ai.ErrEmptyCompletion):
		app.logger.LogAttrs(r.Context(), slog.LevelError, "collaborator failed", errors.SlogError(err))
		app.clientError(w, r, http.StatusBadGateway, "the coach is unavailable, please try again")
	default:
		app.serverError(w, r, err)
	}
}
