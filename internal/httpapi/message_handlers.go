package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"novy.market/internal/market"
)

type sendMessageRequest struct {
	ListingID     string `json:"listing_id"`
	ApplicationID string `json:"application_id"`
	RecipientID   string `json:"recipient_id"`
	Content       string `json:"content"`
}

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := a.svc.SendMessage(r.Context(), actor(r), market.NewMessage{
		ListingID:     req.ListingID,
		ApplicationID: req.ApplicationID,
		RecipientID:   req.RecipientID,
		Content:       req.Content,
	})
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (a *API) inbox(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.svc.ListUserMessages(r.Context(), actor(r).UserID)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": msgs})
}

func (a *API) conversation(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.svc.ListConversation(r.Context(),
		chi.URLParam(r, "id"), actor(r).UserID, chi.URLParam(r, "userID"))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": msgs})
}
