// Package handlers exposes the statistics store's query and update API
// over HTTP for ranking callers in other processes on the same host.
package handlers

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/suggestkit/rankstats/internal/stats"
)

// Handlers holds the store the HTTP surface delegates to.
type Handlers struct {
	Store *stats.Store
}

// NewHandlers wires the handler set to a store.
func NewHandlers(store *stats.Store) *Handlers {
	return &Handlers{Store: store}
}

type conjunctPayload struct {
	Context string `json:"context"`
	Value   string `json:"value"`
}

type keyPayload struct {
	Conjuncts []conjunctPayload `json:"conjuncts"`
}

func (p keyPayload) toKey() stats.Key {
	cs := make([]stats.Conjunct, len(p.Conjuncts))
	for i, c := range p.Conjuncts {
		cs[i] = stats.Conjunct{Context: c.Context, Value: c.Value}
	}
	return stats.NewCompositeKey(cs...)
}

func decodeKey(w http.ResponseWriter, r *http.Request) (stats.Key, bool) {
	var p keyPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid key payload: "+err.Error(), http.StatusBadRequest)
		return stats.Empty, false
	}
	return p.toKey(), true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// HandleUseCount answers POST /v1/use-count with the max use count over
// the posted conjuncts.
func (h *Handlers) HandleUseCount(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeKey(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]int{"useCount": h.Store.GetUseCount(key)})
}

// HandleRecency answers POST /v1/recency with the min recency order over
// the posted conjuncts.
func (h *Handlers) HandleRecency(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeKey(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]int{"recency": h.Store.GetLastUseRecency(key)})
}

// HandleValues answers GET /v1/values/{context} with every value ever
// counted under the context, in insertion order.
func (h *Handlers) HandleValues(w http.ResponseWriter, r *http.Request) {
	context := mux.Vars(r)["context"]
	keys := h.Store.GetAllValues(context)

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = k.Value()
	}
	writeJSON(w, map[string]interface{}{
		"context": context,
		"values":  values,
	})
}

// HandleInc records one use of the posted key. Responds 204.
func (h *Handlers) HandleInc(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeKey(w, r)
	if !ok {
		return
	}
	h.Store.IncUseCount(key)
	w.WriteHeader(http.StatusNoContent)
}

// HandleFlush persists all dirty shards. Saves are best-effort; failures
// are reported server-side, so the endpoint responds 204 either way.
func (h *Handlers) HandleFlush(w http.ResponseWriter, r *http.Request) {
	_ = h.Store.Flush()
	w.WriteHeader(http.StatusNoContent)
}

// HandleStats returns cache occupancy for operators.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	st := h.Store.Stats()
	writeJSON(w, map[string]interface{}{
		"residentUnits": st.ResidentUnits,
		"dirtyUnits":    st.DirtyUnits,
		"memoryUsed":    st.MemoryUsed,
		"memoryBudget":  st.MemoryBudget,
	})
}

// HandleHealth checks server health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
