package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/livelist/livelist/pkg/types"
	"github.com/livelist/livelist/server/internal/hub"
	"github.com/livelist/livelist/server/internal/store"
)

// maxBodyBytes bounds a mutation request body.
const maxBodyBytes = 1 << 20

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads snapshots from the store and forwards mutations to it.
type Handler struct {
	store *store.Store
	hub   *hub.Hub
	mux   *http.ServeMux

	upsert     http.Handler
	replaceAll http.Handler
	deleteAll  http.Handler
}

// New creates a Handler wired to st and hb and registers all routes.
// guard wraps the mutating endpoints; nil leaves them open.
func New(st *store.Store, hb *hub.Hub, guard func(http.Handler) http.Handler) http.Handler {
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	h := &Handler{store: st, hub: hb, mux: http.NewServeMux()}
	h.upsert = guard(http.HandlerFunc(h.upsertRecords))
	h.replaceAll = guard(http.HandlerFunc(h.replaceRecords))
	h.deleteAll = guard(http.HandlerFunc(h.deleteRecords))

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/records", h.records)
	h.mux.HandleFunc("/api/v1/records/", h.getRecord) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := h.store.Snapshot()
	in := healthInput{
		records: snap.Len(),
		store:   h.store.Stats(),
	}
	if h.hub != nil {
		in.subscribers = h.hub.Count()
		in.hub = h.hub.Stats()
	}
	hints := computeDiagnostics(in)

	jsonResp(w, http.StatusOK, HealthResponse{
		Status:          statusFromHints(hints),
		RecordCount:     in.records,
		SubscriberCount: in.subscribers,
		Version:         snap.Version(),
		Diagnostics:     hints,
	})
}

// records dispatches /api/v1/records by method.
func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jsonResp(w, http.StatusOK, h.store.Snapshot().Records())
	case http.MethodPost:
		h.upsert.ServeHTTP(w, r)
	case http.MethodPut:
		h.replaceAll.ServeHTTP(w, r)
	case http.MethodDelete:
		h.deleteAll.ServeHTTP(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, PUT, DELETE")
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// getRecord returns GET /api/v1/records/{id}.
func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/records/")
	if id == "" {
		// Bare /api/v1/records/ behaves like the collection.
		h.records(w, r)
		return
	}
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rec, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "record not found")
		return
	}
	jsonResp(w, http.StatusOK, rec)
}

// snapshot returns GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := h.store.Snapshot()
	jsonResp(w, http.StatusOK, SnapshotResponse{
		Version:     snap.Version(),
		Records:     snap.Records(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) upsertRecords(w http.ResponseWriter, r *http.Request) {
	recs, ok := decodeBatch(w, r)
	if !ok {
		return
	}
	h.commit(w, r, store.Mutation{Records: recs})
}

func (h *Handler) replaceRecords(w http.ResponseWriter, r *http.Request) {
	recs, ok := decodeBatch(w, r)
	if !ok {
		return
	}
	h.commit(w, r, store.Mutation{Reset: true, Records: recs})
}

func (h *Handler) deleteRecords(w http.ResponseWriter, r *http.Request) {
	h.commit(w, r, store.Mutation{Reset: true})
}

// commit applies m and reports the version and size of the snapshot that
// this commit produced.
func (h *Handler) commit(w http.ResponseWriter, r *http.Request, m store.Mutation) {
	snap, err := h.store.Commit(r.Context(), m)
	var verr *store.ValidationError
	switch {
	case err == nil:
		jsonResp(w, http.StatusOK, MutationResponse{Version: snap.Version(), RecordCount: snap.Len()})
	case errors.As(err, &verr):
		jsonErr(w, http.StatusBadRequest, verr.Error())
	default:
		slog.Error("api: mutation failed", "method", r.Method, "err", err)
		jsonErr(w, http.StatusInternalServerError, "mutation failed")
	}
}

// --- helpers ----------------------------------------------------------------

// decodeBatch reads a JSON array of records. On failure it has already
// written a 400 response.
func decodeBatch(w http.ResponseWriter, r *http.Request) ([]types.Record, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	var recs []types.Record
	if err := dec.Decode(&recs); err != nil {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("decode body: %v", err))
		return nil, false
	}
	return recs, true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
