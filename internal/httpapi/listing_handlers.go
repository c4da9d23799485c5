package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"novy.market/internal/market"
)

type createListingRequest struct {
	Type            string    `json:"type"`
	Title           string    `json:"title"`
	Address         string    `json:"address"`
	City            string    `json:"city"`
	State           string    `json:"state"`
	ZipCode         string    `json:"zip_code"`
	Rent            int64     `json:"rent"`
	LeaseExpiration time.Time `json:"lease_expiration"`
	Bedrooms        int       `json:"bedrooms"`
	Bathrooms       int       `json:"bathrooms"`
	SquareFootage   int       `json:"square_footage"`
	Description     string    `json:"description"`
	Amenities       string    `json:"amenities"`
	OwnerEmail      string    `json:"owner_email"`
	OwnerName       string    `json:"owner_name"`
	TenantName      string    `json:"tenant_name"`
}

func (a *API) createListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	act := actor(r)
	l, err := a.svc.CreateListing(r.Context(), market.NewListing{
		UserID:          act.UserID,
		Type:            market.ListingType(req.Type),
		Title:           req.Title,
		Address:         req.Address,
		City:            req.City,
		State:           req.State,
		ZipCode:         req.ZipCode,
		Rent:            req.Rent,
		LeaseExpiration: req.LeaseExpiration,
		Bedrooms:        req.Bedrooms,
		Bathrooms:       req.Bathrooms,
		SquareFootage:   req.SquareFootage,
		Description:     req.Description,
		Amenities:       req.Amenities,
		OwnerEmail:      req.OwnerEmail,
		OwnerName:       req.OwnerName,
		TenantName:      req.TenantName,
	})
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/listings/"+l.ID)
	writeJSON(w, http.StatusCreated, l)
}

// listListings is the public browse endpoint. Without a status filter it
// shows active listings only; other statuses are an explicit query.
func (a *API) listListings(w http.ResponseWriter, r *http.Request) {
	status := market.ListingStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = market.ListingActive
	}
	listings, err := a.svc.ListListings(r.Context(), status)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": listings})
}

func (a *API) getListing(w http.ResponseWriter, r *http.Request) {
	l, err := a.svc.GetListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (a *API) myListings(w http.ResponseWriter, r *http.Request) {
	listings, err := a.svc.ListListingsByUser(r.Context(), actor(r).UserID)
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": listings})
}

type updateListingRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Amenities   *string `json:"amenities"`
	Rent        *int64  `json:"rent"`
}

func (a *API) updateListing(w http.ResponseWriter, r *http.Request) {
	var req updateListingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	l, err := a.svc.UpdateListing(r.Context(), chi.URLParam(r, "id"), actor(r).UserID, market.ListingUpdate{
		Title:       req.Title,
		Description: req.Description,
		Amenities:   req.Amenities,
		Rent:        req.Rent,
	})
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (a *API) deleteListing(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteListing(r.Context(), chi.URLParam(r, "id"), actor(r).UserID); err != nil {
		handleMarketError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Owner decision endpoints

func (a *API) validateToken(w http.ResponseWriter, r *http.Request) {
	review, err := a.svc.ValidateToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

type redeemTokenRequest struct {
	Approve bool `json:"approve"`
}

func (a *API) redeemToken(w http.ResponseWriter, r *http.Request) {
	var req redeemTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	l, err := a.svc.RedeemToken(r.Context(), chi.URLParam(r, "token"), req.Approve, actor(r))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

type setListingStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) adminSetListingStatus(w http.ResponseWriter, r *http.Request) {
	var req setListingStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	l, err := a.svc.SetListingStatus(r.Context(), chi.URLParam(r, "id"), market.ListingStatus(req.Status))
	if err != nil {
		handleMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}
