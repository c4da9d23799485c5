package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"novy.market/internal/auth"
	"novy.market/internal/market"
)

type applyRequest struct {
	ListingID          string     `json:"listing_id"`
	CoverLetter        string     `json:"cover_letter"`
	MoveInDate         *time.Time `json:"move_in_date"`
	AcceptTos          bool       `json:"accept_tos"`
	AcceptedDisclaimer bool       `json:"accept_disclaimer"`
}

func (a *API) apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	app, err := a.svc.Apply(r.Context(), actor(r), market.NewApplication{
		ListingID:          req.ListingID,
		CoverLetter:        req.CoverLetter,
		MoveInDate:         req.MoveInDate,
		AcceptTos:          req.AcceptTos,
		AcceptedDisclaimer: req.AcceptedDisclaimer,
	})
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/applications/"+app.ID)
	writeJSON(w, http.StatusCreated, app)
}

func (a *API) myApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := a.svc.ListMyApplications(r.Context(), actor(r).UserID)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": apps})
}

func (a *API) listingApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := a.svc.ListListingApplications(r.Context(), chi.URLParam(r, "id"), actor(r).UserID)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": apps})
}

func (a *API) getApplication(w http.ResponseWriter, r *http.Request) {
	isAdmin := auth.HasRole(r.Context(), market.RoleAdmin)
	app, err := a.svc.GetApplication(r.Context(), chi.URLParam(r, "id"), actor(r), isAdmin)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

type reviewRequest struct {
	Status string `json:"status"`
}

func (a *API) reviewApplication(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	app, err := a.svc.Review(r.Context(), chi.URLParam(r, "id"), actor(r).UserID,
		market.ApplicationStatus(req.Status))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (a *API) withdrawApplication(w http.ResponseWriter, r *http.Request) {
	app, err := a.svc.Withdraw(r.Context(), chi.URLParam(r, "id"), actor(r).UserID)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (a *API) applicationPayment(w http.ResponseWriter, r *http.Request) {
	// Visibility piggybacks on application access rules.
	isAdmin := auth.HasRole(r.Context(), market.RoleAdmin)
	app, err := a.svc.GetApplication(r.Context(), chi.URLParam(r, "id"), actor(r), isAdmin)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	p, err := a.svc.GetPaymentByApplication(r.Context(), app.ID)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
