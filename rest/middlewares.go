package rest

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/consts"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func WithMiddleWares(handler http.Handler, name string) http.Handler {
	return cors(addRequestID(logRequest(handler, name)))
}

type responseWrapper struct {
	writer http.ResponseWriter
	status int
}

func (w *responseWrapper) Header() http.Header {
	return w.writer.Header()
}

func (w *responseWrapper) Write(data []byte) (int, error) {
	return w.writer.Write(data)
}

func (w *responseWrapper) WriteHeader(status int) {
	w.status = status
	w.writer.WriteHeader(status)
}

func (w *responseWrapper) Flush() {
	if f, ok := w.writer.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets websocket upgrades through the middlewares
func (w *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.writer.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("connection cannot be hijacked")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func logRequest(f http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rid := r.Context().Value(requestIDKey).(string)
		log := logging.From(r.Context()).With(zap.String("request", rid))
		wrapper := responseWrapper{
			writer: w,
			status: http.StatusOK,
		}
		defer func() {
			level := zap.DebugLevel
			if wrapper.status >= http.StatusInternalServerError {
				level = zap.WarnLevel
			}
			if ce := log.Named(name).Check(level, "HTTP Request"); ce != nil {
				ce.Write(zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Duration("duration", time.Since(start)),
					zap.Int("status", wrapper.status))
			}
		}()
		f.ServeHTTP(&wrapper, r.WithContext(logging.Context(r.Context(), log)))
	})
}

type requestIDKeyType int

const (
	requestIDKey    = requestIDKeyType(0)
	requestIDHeader = "X-Request-ID"
)

// addRequestID keeps the caller's request id or assigns one, and echoes it
// back in the response
func addRequestID(f http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if rid == "" {
			rid = uuid.New().String()
			r.Header.Set(requestIDHeader, rid)
		}
		w.Header().Set(requestIDHeader, rid)
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		f.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cors opens the API to browser clients served from elsewhere in dev mode
func cors(h http.Handler) http.Handler {
	if !consts.IsDevMode() {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
			w.Header().Set("Access-Control-Expose-Headers", "Location, "+requestIDHeader)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
