package backend

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mkuiper/recordstore/internal/record"
)

// StampLayout is the server-side stamp format. Fixed-width fractional
// seconds keep lexicographic and chronological order identical, which the
// client's watermark comparison relies on.
const StampLayout = "2006-01-02T15:04:05.000000000Z"

// Handler serves the sync wire protocol over a DB.
type Handler struct {
	db       *DB
	mux      *http.ServeMux
	logger   *slog.Logger
	now      func() time.Time
	versions map[string]int64
}

// Option tweaks a Handler.
type Option func(*Handler)

// WithClock overrides the stamp clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithActionVersion declares the serialization version for a kind. A client
// syncing with a different version gets the full collection back, forced.
func WithActionVersion(kind string, v int64) Option {
	return func(h *Handler) { h.versions[kind] = v }
}

// NewHandler creates a Handler and wires up all routes.
func NewHandler(db *DB, opts ...Option) *Handler {
	h := &Handler{db: db, mux: http.NewServeMux(), now: time.Now, logger: slog.Default(), versions: map[string]int64{}}
	for _, o := range opts {
		o(h)
	}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.mux.HandleFunc("POST /multi_index", h.multiIndex)
	h.mux.HandleFunc("POST /{kind}/index", h.index)
	h.mux.HandleFunc("POST /{kind}/multi_update", h.multiUpdate)
	h.mux.HandleFunc("POST /{kind}/destroy", h.destroy)
	h.mux.HandleFunc("POST /{kind}", h.create)
	h.mux.HandleFunc("GET /{kind}/{id}", h.show)
	h.mux.HandleFunc("PUT /{kind}/{id}", h.update)
	h.mux.HandleFunc("DELETE /{kind}/{id}", h.remove)
}

func (h *Handler) stamp() string {
	return h.now().UTC().Format(StampLayout)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeErrors(w http.ResponseWriter, status int, errs map[string]any) {
	writeJSON(w, status, map[string]any{"errors": errs})
}

func readJSON(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

// recordEnvelope digs the record payload out of a mutation body: the
// singular-keyed object, whichever key it travelled under.
func recordEnvelope(body map[string]any) (map[string]any, bool) {
	for k, v := range body {
		if k == "items" || k == "resources" {
			continue
		}
		if fields, ok := v.(map[string]any); ok {
			return fields, true
		}
	}
	return nil, false
}

// index answers one incremental sync request.
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	body, err := readJSON(r)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, map[string]any{"base": "malformed request body"})
		return
	}
	resp, err := h.indexResponse(kind, body)
	if err != nil {
		h.logger.Error("index failed", "kind", kind, "error", err)
		writeErrors(w, http.StatusInternalServerError, map[string]any{"base": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// multiIndex answers a batched sync: each entry under resources is an
// independent index request keyed by kind.
func (h *Handler) multiIndex(w http.ResponseWriter, r *http.Request) {
	body, err := readJSON(r)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, map[string]any{"base": "malformed request body"})
		return
	}
	resources, _ := body["resources"].(map[string]any)
	out := map[string]any{}
	for kind, v := range resources {
		params, _ := v.(map[string]any)
		resp, err := h.indexResponse(kind, params)
		if err != nil {
			h.logger.Error("index failed", "kind", kind, "error", err)
			writeErrors(w, http.StatusInternalServerError, map[string]any{"base": err.Error()})
			return
		}
		out[kind] = resp
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) indexResponse(kind string, params map[string]any) (map[string]any, error) {
	lastUpdated, _ := params["last_updated_stamp"].(string)
	deletedStamp, _ := params["deleted_stamp"].(string)
	filters, _ := params["filters"].(map[string]any)

	forced := false
	if v := h.versions[kind]; v != 0 && versionOf(params["action_version"]) != v {
		// Version drift: the client's cached shape is stale, so replay
		// the whole collection and tell it to drop what it has.
		lastUpdated = ""
		forced = true
	}

	items, err := h.db.FilteredSince(kind, lastUpdated, filters)
	if err != nil {
		return nil, err
	}

	resp := map[string]any{"items": itemsValue(items)}
	if v := h.versions[kind]; v != 0 {
		resp["action_version"] = v
	}
	if forced {
		resp["force"] = true
	}

	// Deletions: tombstones past the client's checkpoint, plus any
	// current_ids that no longer exist at all.
	destroyed, newest, err := h.db.DeletedSince(kind, deletedStamp)
	if err != nil {
		return nil, err
	}
	destroyedSet := map[string]bool{}
	for _, id := range destroyed {
		destroyedSet[id] = true
	}

	var removedFromScope []string
	for _, rawID := range append(idKeys(params["current_ids"]), idKeys(params["unscoped_ids"])...) {
		if destroyedSet[rawID] {
			continue
		}
		doc, err := h.db.Get(kind, rawID)
		if err != nil {
			return nil, err
		}
		switch {
		case doc == nil:
			destroyed = append(destroyed, rawID)
			destroyedSet[rawID] = true
		case len(filters) > 0 && !matchesFilters(doc, filters):
			removedFromScope = append(removedFromScope, rawID)
		}
	}

	if len(destroyed) > 0 {
		resp["destroyed_ids"] = destroyed
	}
	if len(removedFromScope) > 0 {
		resp["removed_from_scope_ids"] = removedFromScope
	}
	if newest != "" {
		resp["deleted_stamp"] = newest
	} else if deletedStamp == "" {
		// First contact: hand out a checkpoint so the client starts
		// asking about deletions from now on.
		resp["deleted_stamp"] = h.stamp()
	}
	return resp, nil
}

// create inserts a record, allocating an id when the payload has none.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	body, err := readJSON(r)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, map[string]any{"base": "malformed request body"})
		return
	}
	fields, ok := recordEnvelope(body)
	if !ok || len(fields) == 0 {
		writeErrors(w, http.StatusUnprocessableEntity, map[string]any{"base": "missing record payload"})
		return
	}

	id := fields["id"]
	if id == nil {
		next, err := h.db.NextID(kind)
		if err != nil {
			writeErrors(w, http.StatusInternalServerError, map[string]any{"base": err.Error()})
			return
		}
		id = float64(next)
		fields["id"] = id
	}
	if err := h.db.Put(kind, idKey(id), fields, h.stamp()); err != nil {
		writeErrors(w, http.StatusInternalServerError, map[string]any{"base": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"item": fields})
}

// update merges fields into an existing record.
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	kind, id := r.PathValue("kind"), r.PathValue("id")
	body, err := readJSON(r)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, map[string]any{"base": "malformed request body"})
		return
	}
	fields, ok := recordEnvelope(body)
	if !ok {
		writeErrors(w, http.StatusUnprocessableEntity, map[string]any{"base": "missing record payload"})
		return
	}

	existing, status, err := h.lookup(kind, id)
	if err != nil {
		writeErrors(w, http.StatusInternalServerError, map[string]any{"base": err.Error()})
		return
	}
	if status != 0 {
		writeJSON(w, status, nil)
		return
	}
	for k, v := range fields {
		existing[k] = v
	}
	if err := h.db.Put(kind, id, existing, h.stamp()); err != nil {
		writeErrors(w, http.StatusInternalServerError, map[string]any{"base": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": existing})
}

// multiUpdate applies a batch of member updates in one request.
func (h *Handler) multiUpdate(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	body, err := readJSON(r)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, map[string]any{"base": "malformed request body"})
		return
	}
	list, _ := body["items"].([]any)

	var updated []any
	for _, v := range list {
		fields, ok := v.(map[string]any)
		if !ok || fields["id"] == nil {
			writeErrors(w, http.StatusUnprocessableEntity, map[string]any{"base": "every item needs an id"})
			return
		}
		id := idKey(fields["id"])
		existing, status, err := h.lookup(kind, id)
		if err != nil {
			writeErrors(w, http.StatusInternalServerError, map[string]any{"base": err.Error()})
			return
		}
		if status != 0 {
			writeJSON(w, status, nil)
			return
		}
		for k, val := range fields {
			existing[k] = val
		}
		if err := h.db.Put(kind, id, existing, h.stamp()); err != nil {
			writeErrors(w, http.StatusInternalServerError, map[string]any{"base": err.Error()})
			return
		}
		updated = append(updated, existing)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": updated})
}

// show returns a single record.
func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	kind, id := r.PathValue("kind"), r.PathValue("id")
	doc, status, err := h.lookup(kind, id)
	if err != nil {
		writeErrors(w, http.StatusInternalServerError, map[string]any{"base": err.Error()})
		return
	}
	if status != 0 {
		writeJSON(w, status, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": doc})
}

// remove deletes a record, tombstoning it for incremental syncs.
func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	kind, id := r.PathValue("kind"), r.PathValue("id")
	deleted, err := h.db.Delete(kind, id, h.stamp())
	if err != nil {
		writeErrors(w, http.StatusInternalServerError, map[string]any{"base": err.Error()})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusGone, nil)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// destroy is the mutation-envelope variant of remove; it reports the
// deletion in the body so clients fold it like any other mutation.
func (h *Handler) destroy(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	body, err := readJSON(r)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, map[string]any{"base": "malformed request body"})
		return
	}
	fields, ok := recordEnvelope(body)
	if !ok || fields["id"] == nil {
		writeErrors(w, http.StatusUnprocessableEntity, map[string]any{"base": "missing record id"})
		return
	}
	id := idKey(fields["id"])
	deleted, err := h.db.Delete(kind, id, h.stamp())
	if err != nil {
		writeErrors(w, http.StatusInternalServerError, map[string]any{"base": err.Error()})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusGone, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"destroyed_ids": []any{fields["id"]}})
}

// lookup fetches a record, mapping missing to 404 and tombstoned to 410.
func (h *Handler) lookup(kind, id string) (map[string]any, int, error) {
	doc, err := h.db.Get(kind, id)
	if err != nil {
		return nil, 0, err
	}
	if doc != nil {
		return doc, 0, nil
	}
	gone, err := h.db.Tombstoned(kind, id)
	if err != nil {
		return nil, 0, err
	}
	if gone {
		return nil, http.StatusGone, nil
	}
	return nil, http.StatusNotFound, nil
}

// matchesFilters re-checks one document against scope filters; used for
// the current_ids reconciliation where records are fetched by id. Scalar
// filters compare loosely, list filters are membership tests.
func matchesFilters(doc, filters map[string]any) bool {
	for field, want := range filters {
		have := doc[field]
		if list, ok := want.([]any); ok {
			found := false
			for _, v := range list {
				if looseEqual(have, v) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !looseEqual(have, want) {
			return false
		}
	}
	return true
}

// looseEqual compares JSON-decoded scalars by canonical rendering, so 7
// and 7.0 are the same value.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	return record.CanonicalString(a) == record.CanonicalString(b)
}

// versionOf reads a client-sent action version, which arrives as a JSON
// number or not at all.
func versionOf(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func idKeys(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, len(list))
	for i, id := range list {
		out[i] = idKey(id)
	}
	return out
}

func itemsValue(items []map[string]any) []any {
	out := make([]any, len(items))
	for i, doc := range items {
		out[i] = doc
	}
	return out
}
