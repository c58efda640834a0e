package brain

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// AdminRouter exposes read-only introspection into a running Brain:
// recent tool-call history and current dispatch-queue depth. It's
// mounted separately from the service's main API surface so an
// operator can curl it without an API key during local debugging.
func (b *Brain) AdminRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", b.handleHealthz)
	r.Get("/history", b.handleHistory)
	r.Get("/zones", b.handleZones)
	r.Get("/queue", b.handleQueue)
	return r
}

func (b *Brain) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (b *Brain) handleHistory(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-historyRetention)
	writeJSON(w, http.StatusOK, b.history.Since(since))
}

func (b *Brain) handleZones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.world.GetAllZones())
}

func (b *Brain) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"queued": b.queue.Len()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
