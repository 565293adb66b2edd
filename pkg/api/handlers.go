package api

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/freyjadoc/pkg/docstore"
	"github.com/ssargent/freyjadoc/pkg/document"
	"github.com/ssargent/freyjadoc/pkg/logging"
	"github.com/ssargent/freyjadoc/pkg/schema"
)

// maxBodySize bounds document request bodies.
const maxBodySize = 4 << 20

// Server holds the API server state
type Server struct {
	store   *docstore.Store
	config  ServerConfig
	metrics *Metrics
}

// NewServer creates a new API server
func NewServer(store *docstore.Store, config ServerConfig, metrics *Metrics) *Server {
	return &Server{
		store:   store,
		config:  config,
		metrics: metrics,
	}
}

// statusFor maps store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, docstore.ErrUnknownType):
		return http.StatusNotFound
	case errors.Is(err, docstore.ErrWrongType):
		return http.StatusConflict
	case errors.Is(err, docstore.ErrCorruption):
		return http.StatusInternalServerError
	case errors.Is(err, schema.ErrFieldNotDeclared), errors.Is(err, schema.ErrTypeMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, start time.Time, err error) {
	s.metrics.RecordDocOperation(op, false, time.Since(start))
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Errorf("%s: %+v", op, err)
	}
	sendError(w, err.Error(), status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]interface{}{
		"status":     "healthy",
		"sync_token": s.store.SyncToken(),
	})
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	var out []TypeResponse
	for _, name := range s.store.Types() {
		st, err := s.store.Type(name)
		if err != nil {
			continue
		}
		tr := TypeResponse{Name: name, Compression: st.Compression().Type.String()}
		for _, f := range st.Fields() {
			tr.Fields = append(tr.Fields, FieldResponse{ID: uint32(f.ID), Name: f.Name, Type: f.Type.Name()})
		}
		out = append(out, tr)
	}
	sendSuccess(w, out)
}

func parseID(w http.ResponseWriter, r *http.Request) (ksuid.KSUID, bool) {
	id, err := ksuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, "Invalid document id", http.StatusBadRequest)
		return ksuid.Nil, false
	}
	return id, true
}

func readBody(r *http.Request) (map[string]interface{}, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	return DecodeFields(body)
}

// ApplyFields writes decoded JSON fields into v, converting each value to
// the declared field type. A JSON null removes the field. Fields that
// already hold the given value, and removals of absent fields, leave v
// unchanged.
func ApplyFields(v *document.StructValue, fields map[string]interface{}) error {
	for name, raw := range fields {
		f, err := v.Field(name)
		if err != nil {
			return err
		}
		if raw == nil {
			if !v.HasValue(f) {
				continue
			}
			if err := v.RemoveValue(f); err != nil {
				return err
			}
			continue
		}
		val, err := coerce(f, raw)
		if err != nil {
			return err
		}
		same, err := holds(v, f, val)
		if err != nil {
			return err
		}
		if same {
			continue
		}
		if err := v.SetValue(f, val); err != nil {
			return err
		}
	}
	return nil
}

// holds reports whether the stored bytes of f are the encoding of val.
func holds(v *document.StructValue, f schema.Field, val interface{}) (bool, error) {
	cur, ok, err := v.RawField(f.ID)
	if err != nil || !ok {
		return false, err
	}
	enc, err := f.Type.Encode(val)
	if err != nil {
		return false, err
	}
	return bytes.Equal(cur, enc), nil
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, op string, id ksuid.KSUID, v *document.StructValue, status int) {
	start := time.Now()
	token, err := s.store.Put(r.Context(), id, v)
	if err != nil {
		s.fail(w, op, start, err)
		return
	}
	s.metrics.RecordDocOperation(op, true, time.Since(start))
	if info, err := s.store.Inspect(r.Context(), id); err == nil {
		s.metrics.RecordDocBytes(info.UncompressedSize, info.Size)
	}
	sendJSON(w, DocumentResponse{ID: id.String(), Type: v.Type().Name(), SyncToken: token}, status)
}

// handleCreate stores a new document under a generated id.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	st, err := s.store.Type(chi.URLParam(r, "type"))
	if err != nil {
		s.fail(w, "create", start, err)
		return
	}
	fields, err := readBody(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	v := document.NewStructValue(st)
	if err := ApplyFields(v, fields); err != nil {
		s.fail(w, "create", start, err)
		return
	}
	s.write(w, r, "create", s.store.NewID(), v, http.StatusCreated)
}

// handlePut replaces the document stored under id.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	st, err := s.store.Type(chi.URLParam(r, "type"))
	if err != nil {
		s.fail(w, "put", start, err)
		return
	}
	fields, err := readBody(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	v := document.NewStructValue(st)
	if err := ApplyFields(v, fields); err != nil {
		s.fail(w, "put", start, err)
		return
	}
	s.write(w, r, "put", id, v, http.StatusOK)
}

// handlePatch updates some fields of a stored document. Fields that are not
// named keep their stored bytes without being decoded.
func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	fields, err := readBody(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := s.store.Get(r.Context(), chi.URLParam(r, "type"), id)
	if err != nil {
		s.fail(w, "patch", start, err)
		return
	}
	if err := ApplyFields(v, fields); err != nil {
		s.fail(w, "patch", start, err)
		return
	}
	if !v.HasChanged() {
		s.metrics.RecordDocOperation("patch", true, time.Since(start))
		sendSuccess(w, DocumentResponse{ID: id.String(), Type: v.Type().Name(), SyncToken: s.store.SyncToken()})
		return
	}
	s.write(w, r, "patch", id, v, http.StatusOK)
}

// handleGet returns a document. The fields query parameter restricts the
// response to a comma separated list of field names.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	v, err := s.store.Get(r.Context(), chi.URLParam(r, "type"), id)
	if err != nil {
		s.fail(w, "get", start, err)
		return
	}

	var names []string
	if q := r.URL.Query().Get("fields"); q != "" {
		names = strings.Split(q, ",")
	}
	out, err := FieldValues(v, names...)
	if err != nil {
		s.fail(w, "get", start, err)
		return
	}
	s.metrics.RecordDocOperation("get", true, time.Since(start))
	sendSuccess(w, DocumentResponse{ID: id.String(), Type: v.Type().Name(), Fields: out})
}

// FieldValues decodes the named fields of v, or every declared field when
// names is empty. Fields without a value are left out.
func FieldValues(v *document.StructValue, names ...string) (map[string]interface{}, error) {
	var fs schema.FieldSet = schema.AllFields
	if len(names) > 0 {
		list, err := schema.FieldNames(v.Type(), names...)
		if err != nil {
			return nil, err
		}
		fs = list
	}

	out := make(map[string]interface{})
	for _, fid := range v.RawFieldIDsIn(fs) {
		f, ok := v.Type().FieldByID(fid)
		if !ok {
			continue
		}
		val, _, err := v.Value(f)
		if err != nil {
			return nil, errors.Mark(err, docstore.ErrCorruption)
		}
		out[f.Name] = val
	}
	return out, nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.fail(w, "delete", start, err)
		return
	}
	s.metrics.RecordDocOperation("delete", true, time.Since(start))
	sendSuccess(w, map[string]string{"status": "deleted", "id": id.String()})
}

// handleInspect reports blob metadata without decoding the document.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	info, err := s.store.Inspect(r.Context(), id)
	if err != nil {
		s.fail(w, "inspect", start, err)
		return
	}
	s.metrics.RecordDocOperation("inspect", true, time.Since(start))
	sendSuccess(w, info)
}

// handleStatsSnapshot returns the cache counters since the previous
// snapshot and starts a new period.
func (s *Server) handleStatsSnapshot(w http.ResponseWriter, r *http.Request) {
	stats := s.store.SnapshotCacheStats()
	sendSuccess(w, map[string]interface{}{
		"cache":    stats,
		"hit_rate": stats.HitRate(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.store.CacheStats()
	sendSuccess(w, map[string]interface{}{
		"cache":      stats,
		"hit_rate":   stats.HitRate(),
		"sync_token": s.store.SyncToken(),
	})
}
