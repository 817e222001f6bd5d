package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
	"bitbucket.org/kleinnic74/pinphotos/gallery"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"bitbucket.org/kleinnic74/pinphotos/rest/cursor"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PinsHandler exposes pins and the intents of their views
type PinsHandler struct {
	gallery *gallery.Gallery
	repo    library.Repository
}

func NewPinsHandler(g *gallery.Gallery, repo library.Repository) *PinsHandler {
	return &PinsHandler{gallery: g, repo: repo}
}

func (h *PinsHandler) InitRoutes(r *mux.Router) {
	r.HandleFunc("/pins", h.getPins).Methods(http.MethodGet)
	r.HandleFunc("/pins", h.dropPin).Methods(http.MethodPost)
	r.HandleFunc("/pins/{id}", h.removePin).Methods(http.MethodDelete)
	r.HandleFunc("/pins/{id}/photos", h.getPhotos).Methods(http.MethodGet)
	r.HandleFunc("/pins/{id}/view", h.openView).Methods(http.MethodPost)
	r.HandleFunc("/pins/{id}/view", h.getView).Methods(http.MethodGet)
	r.HandleFunc("/pins/{id}/view", h.closeView).Methods(http.MethodDelete)
	r.HandleFunc("/pins/{id}/view/next", h.withView(h.nextAlbum)).Methods(http.MethodPost)
	r.HandleFunc("/pins/{id}/view/select/{index}", h.withView(h.toggleSelection)).Methods(http.MethodPost)
	r.HandleFunc("/pins/{id}/view/remove", h.withView(h.removeSelected)).Methods(http.MethodPost)
	r.HandleFunc("/pins/{id}/view/retry", h.withView(h.retryFailed)).Methods(http.MethodPost)
	r.HandleFunc("/pins/{id}/view/items/{index}", h.withView(h.getItem)).Methods(http.MethodGet)
}

func pinID(r *http.Request) library.PinID {
	return library.PinID(mux.Vars(r)["id"])
}

type viewHandlerFunc func(*gallery.View, http.ResponseWriter, *http.Request)

func (h *PinsHandler) withView(f viewHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := pinID(r)
		v, found := h.gallery.View(id)
		if !found {
			Respond(r).WithError(w, http.StatusNotFound, fmt.Errorf("no open view for pin %s", id))
			return
		}
		f(v, w, r)
	}
}

func (h *PinsHandler) getPins(w http.ResponseWriter, r *http.Request) {
	c := cursor.DecodeFromRequest(r)
	pins, hasMore, err := h.gallery.Pins(r.Context(), c.Start, c.PageSize)
	if err != nil {
		WithFailure(w, r, err)
		return
	}
	logging.From(r.Context()).Named("http").Debug("/pins",
		zap.Bool("hasMore", hasMore), zap.Uint("start", c.Start), zap.Uint("page", c.PageSize))
	Respond(r).WithJSON(w, http.StatusOK, cursor.PageFor(pins, c, hasMore))
}

type dropRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h *PinsHandler) dropPin(w http.ResponseWriter, r *http.Request) {
	var req dropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Respond(r).WithError(w, http.StatusBadRequest, err)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		Respond(r).WithError(w, http.StatusBadRequest, errors.New("latitude and longitude are required"))
		return
	}
	c, err := gps.ParseCoordinates(*req.Latitude, *req.Longitude)
	if err != nil {
		Respond(r).WithError(w, http.StatusBadRequest, err)
		return
	}
	pin, err := h.gallery.DropPin(r.Context(), c)
	if err != nil {
		WithFailure(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/pins/%s", pin.ID))
	Respond(r).WithJSON(w, http.StatusCreated, pin)
}

func (h *PinsHandler) removePin(w http.ResponseWriter, r *http.Request) {
	if err := h.gallery.RemovePin(r.Context(), pinID(r)); err != nil {
		WithFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PinsHandler) getPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := h.repo.FetchPhotos(r.Context(), pinID(r))
	if err != nil {
		WithFailure(w, r, err)
		return
	}
	Respond(r).WithJSON(w, http.StatusOK, cursor.Unpaged(photos))
}

func (h *PinsHandler) openView(w http.ResponseWriter, r *http.Request) {
	v, err := h.gallery.OpenView(r.Context(), pinID(r))
	if err != nil {
		WithFailure(w, r, err)
		return
	}
	Respond(r).WithJSON(w, http.StatusOK, v.State())
}

func (h *PinsHandler) getView(w http.ResponseWriter, r *http.Request) {
	h.withView(func(v *gallery.View, w http.ResponseWriter, r *http.Request) {
		Respond(r).WithJSON(w, http.StatusOK, v.State())
	})(w, r)
}

func (h *PinsHandler) closeView(w http.ResponseWriter, r *http.Request) {
	if err := h.gallery.CloseView(r.Context(), pinID(r)); err != nil {
		WithFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PinsHandler) nextAlbum(v *gallery.View, w http.ResponseWriter, r *http.Request) {
	if err := v.NextAlbum(r.Context()); err != nil {
		WithFailure(w, r, err)
		return
	}
	Respond(r).WithJSON(w, http.StatusAccepted, v.State())
}

type selectionResponse struct {
	Selected int `json:"selected"`
}

func (h *PinsHandler) toggleSelection(v *gallery.View, w http.ResponseWriter, r *http.Request) {
	index, err := intVar(r, "index")
	if err != nil {
		Respond(r).WithError(w, http.StatusBadRequest, err)
		return
	}
	count, err := v.ToggleSelection(index)
	if err != nil {
		WithFailure(w, r, err)
		return
	}
	Respond(r).WithJSON(w, http.StatusOK, selectionResponse{Selected: count})
}

type removeRequest struct {
	Indices []int `json:"indices"`
}

func (h *PinsHandler) removeSelected(v *gallery.View, w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			Respond(r).WithError(w, http.StatusBadRequest, err)
			return
		}
	}
	if err := v.RemoveSelected(r.Context(), req.Indices); err != nil {
		WithFailure(w, r, err)
		return
	}
	Respond(r).WithJSON(w, http.StatusOK, v.State())
}

type retryResponse struct {
	Retried int `json:"retried"`
}

func (h *PinsHandler) retryFailed(v *gallery.View, w http.ResponseWriter, r *http.Request) {
	retried, err := v.RetryFailed(r.Context())
	if err != nil {
		WithFailure(w, r, err)
		return
	}
	Respond(r).WithJSON(w, http.StatusOK, retryResponse{Retried: retried})
}

func (h *PinsHandler) getItem(v *gallery.View, w http.ResponseWriter, r *http.Request) {
	index, err := intVar(r, "index")
	if err != nil {
		Respond(r).WithError(w, http.StatusBadRequest, err)
		return
	}
	data, err := v.ItemContent(r.Context(), index)
	if err != nil {
		WithFailure(w, r, err)
		return
	}
	respondWithBinary(w, domain.MimeOf(data), data)
}
