package rest

import (
	"net/http"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PhotosHandler serves the content of stored photos
type PhotosHandler struct {
	repo library.Repository
}

func NewPhotosHandler(repo library.Repository) *PhotosHandler {
	return &PhotosHandler{repo: repo}
}

func (h *PhotosHandler) InitRoutes(r *mux.Router) {
	r.HandleFunc("/photos/{id}", h.getPhoto).Methods(http.MethodGet)
}

// InitThumbRoutes adds the thumbnail route
func (h *PhotosHandler) InitThumbRoutes(r *mux.Router) {
	r.HandleFunc("/photos/{id}/thumb", h.getThumb).Methods(http.MethodGet)
}

func photoID(r *http.Request) library.PhotoID {
	return library.PhotoID(mux.Vars(r)["id"])
}

func (h *PhotosHandler) getPhoto(w http.ResponseWriter, r *http.Request) {
	data, photo, err := h.repo.PhotoContent(r.Context(), photoID(r))
	if err != nil {
		WithFailure(w, r, err)
		return
	}
	mime := photo.Mime
	if mime == "" {
		mime = domain.MimeOf(data)
	}
	respondWithBinary(w, mime, data)
}

func (h *PhotosHandler) getThumb(w http.ResponseWriter, r *http.Request) {
	size := domain.Small
	if s, found := domain.ThumbSizes[r.URL.Query().Get("size")]; found {
		size = s
	}
	data, _, err := h.repo.PhotoContent(r.Context(), photoID(r))
	if err != nil {
		WithFailure(w, r, err)
		return
	}
	thumb, err := domain.ThumbnailOf(data, size)
	if err != nil {
		logging.From(r.Context()).Info("No thumbnail", zap.String("photo", string(photoID(r))), zap.Error(err))
		WithFailure(w, r, err)
		return
	}
	respondWithBinary(w, "image/jpeg", thumb)
}
