package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *API) adminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.PlatformStats(r.Context())
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) adminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.svc.ListUsers(r.Context())
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (a *API) adminApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := a.svc.ListApplications(r.Context())
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": apps})
}

func (a *API) adminAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := a.svc.AuditTrail(r.Context(),
		chi.URLParam(r, "resourceType"), chi.URLParam(r, "resourceID"))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}
