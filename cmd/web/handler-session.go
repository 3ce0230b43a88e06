package main

import (
	"net/http"

	"github.com/myrjola/coachline/internal/coach"
	"github.com/myrjola/coachline/internal/contexthelpers"
)

type sessionResponse struct {
	CSRFToken     string              `json:"csrfToken"`
	Authenticated bool                `json:"authenticated"`
	Backend       string              `json:"backend"`
	Discovery     coach.DiscoveryView `json:"discovery"`
}

// coachSession returns the coach session of the caller.
func (app *application) coachSession(r *http.Request) *coach.Session {
	ctx := r.Context()
	return app.registry.Session(ctx, contexthelpers.Identity(ctx), contexthelpers.DeviceID(ctx))
}

// session is called when the app loads. Anonymous users get a fresh coach session, which restarts their
// questionnaire. Authenticated users keep theirs, composed from the stored profile on first use.
func (app *application) session(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app.registry.Reset(contexthelpers.Identity(ctx), contexthelpers.DeviceID(ctx))
	s := app.coachSession(r)
	app.writeData(w, r, sessionResponse{
		CSRFToken:     contexthelpers.CSRFToken(ctx),
		Authenticated: contexthelpers.IsAuthenticated(ctx),
		Backend:       string(s.Gateway().Backend()),
		Discovery:     s.DiscoveryStatus(),
	})
}
