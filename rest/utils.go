package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/gallery"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Responder interface {
	WithJSON(http.ResponseWriter, int, interface{})
	WithError(http.ResponseWriter, int, error)
}

type encoderFunc func(*json.Encoder) *json.Encoder

type responder struct {
	encoderOptions encoderFunc
}

var (
	pretty  Responder
	compact Responder
)

func init() {
	pretty = responder{func(encoder *json.Encoder) *json.Encoder {
		encoder.SetIndent("", "  ")
		return encoder
	}}
	compact = responder{func(e *json.Encoder) *json.Encoder { return e }}
}

func Respond(r *http.Request) Responder {
	if r.URL.Query().Get("pretty") == "true" {
		return pretty
	}
	return compact
}

type errorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (r responder) WithError(w http.ResponseWriter, status int, err error) {
	payload := errorPayload{Error: err.Error()}
	var derr *domain.Error
	if errors.As(err, &derr) {
		payload.Kind = derr.Kind.String()
	}
	r.WithJSON(w, status, payload)
}

func (r responder) WithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := r.encoderOptions(json.NewEncoder(w))
	encoder.Encode(payload)
}

// WithFailure maps err to an HTTP status and responds with it
func WithFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logging.From(r.Context()).Error("Internal error", zap.String("path", r.URL.Path), zap.Error(err))
	}
	Respond(r).WithError(w, status, err)
}

func statusOf(err error) int {
	switch {
	case library.IsNotFound(err), errors.Is(err, gallery.ErrNoSuchItem):
		return http.StatusNotFound
	case errors.Is(err, gallery.ErrNotSelectable):
		return http.StatusConflict
	case errors.Is(err, gallery.ErrViewClosed):
		return http.StatusGone
	}
	switch domain.KindOf(err) {
	case domain.NetworkError, domain.HTTPStatusError, domain.APIError:
		return http.StatusBadGateway
	case domain.DecodeError:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func respondWithBinary(w http.ResponseWriter, mime string, data []byte) {
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func intVar(r *http.Request, name string) (int, error) {
	value, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		return 0, fmt.Errorf("bad %s: %w", name, err)
	}
	return value, nil
}
