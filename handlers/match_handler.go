package handlers

import (
	"net/http"

	"github.com/bracketops/matchday/middleware"
	"github.com/bracketops/matchday/models"
	"github.com/bracketops/matchday/services"
)

type MatchHandler struct {
	lifecycle services.MatchLifecycleService
}

func NewMatchHandler(lifecycle services.MatchLifecycleService) *MatchHandler {
	return &MatchHandler{lifecycle: lifecycle}
}

func (h *MatchHandler) lifecycleRequest(w http.ResponseWriter, r *http.Request) (models.Principal, int, int, bool) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return models.Principal{}, 0, 0, false
	}
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return models.Principal{}, 0, 0, false
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return models.Principal{}, 0, 0, false
	}
	return principal, tournamentID, matchID, true
}

func (h *MatchHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	principal, tournamentID, matchID, ok := h.lifecycleRequest(w, r)
	if !ok {
		return
	}

	var input services.SubmitMatchInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.TournamentID = tournamentID
	input.MatchID = matchID

	match, err := h.lifecycle.Submit(r.Context(), principal, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) ConfirmHandler(w http.ResponseWriter, r *http.Request) {
	principal, tournamentID, matchID, ok := h.lifecycleRequest(w, r)
	if !ok {
		return
	}

	var input services.ConfirmMatchInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.TournamentID = tournamentID
	input.MatchID = matchID

	match, err := h.lifecycle.Confirm(r.Context(), principal, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) CompleteHandler(w http.ResponseWriter, r *http.Request) {
	principal, tournamentID, matchID, ok := h.lifecycleRequest(w, r)
	if !ok {
		return
	}

	var input services.CompleteMatchInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.TournamentID = tournamentID
	input.MatchID = matchID

	match, err := h.lifecycle.Complete(r.Context(), principal, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) ForfeitHandler(w http.ResponseWriter, r *http.Request) {
	principal, tournamentID, matchID, ok := h.lifecycleRequest(w, r)
	if !ok {
		return
	}

	var input services.ForfeitMatchInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.TournamentID = tournamentID
	input.MatchID = matchID

	match, err := h.lifecycle.Forfeit(r.Context(), principal, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) GetMatchHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.lifecycle.GetMatch(r.Context(), tournamentID, matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var status *models.MatchStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := models.MatchStatus(raw)
		switch s {
		case models.MatchStatusScheduled, models.MatchStatusSubmitted, models.MatchStatusCompleted:
			status = &s
		default:
			badRequestResponse(w, r, errInvalidStatusFilter(raw))
			return
		}
	}

	matches, err := h.lifecycle.ListMatches(r.Context(), tournamentID, status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
