package rest

import (
	"net/http"

	"bitbucket.org/kleinnic74/pinphotos/logging"
	"bitbucket.org/kleinnic74/pinphotos/search"
	"github.com/gorilla/mux"
)

// StatsSource provides the counters of the photo searches
type StatsSource interface {
	DumpStats() search.Stats
}

// DebugHandler exposes the in-memory logs and the search counters
type DebugHandler struct {
	stats StatsSource
}

func NewDebugHandler(stats StatsSource) DebugHandler {
	return DebugHandler{stats: stats}
}

func (d DebugHandler) InitRoutes(r *mux.Router) {
	r.HandleFunc("/logs", d.logs).Methods("GET")
	if d.stats != nil {
		r.HandleFunc("/debug/search", d.searchStats).Methods("GET")
	}
}

// logs dumps the most recent lines first unless ?order=asc
func (d DebugHandler) logs(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	logging.Dump(w, r.URL.Query().Get("order") != "asc")
}

func (d DebugHandler) searchStats(w http.ResponseWriter, r *http.Request) {
	Respond(r).WithJSON(w, http.StatusOK, d.stats.DumpStats())
}
