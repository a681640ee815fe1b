package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mutamap/core-go/internal/colorscale"
	"mutamap/core-go/internal/controller"
	"mutamap/core-go/internal/metrics"
	"mutamap/core-go/internal/provider"
	"mutamap/core-go/internal/store"
)

// maxUploadBytes bounds an uploaded tabular file.
const maxUploadBytes = 16 << 20

// Pinger is what readiness checking needs from the optional archive.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	log     zerolog.Logger
	store   *store.Store
	ctrl    *controller.Controller
	metrics *metrics.Metrics
	live    http.Handler
	archive Pinger
}

func NewHandler(log zerolog.Logger, st *store.Store, ctrl *controller.Controller, m *metrics.Metrics, live http.Handler, archive Pinger) *Handler {
	return &Handler{
		log:     log,
		store:   st,
		ctrl:    ctrl,
		metrics: m,
		live:    live,
		archive: archive,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Get("/records", h.handleListRecords)
			r.Get("/state", h.handleGetState)

			r.Route("/selection", func(r chi.Router) {
				r.Get("/", h.handleGetSelection)
				r.Put("/", h.handlePutSelection)
				r.Delete("/", h.handleDeleteSelection)
			})

			r.Route("/dataset", func(r chi.Router) {
				r.Post("/fetch", h.handleFetch)
				r.Post("/upload", h.handleUpload)
				r.Post("/generate", h.handleGenerate)
				r.Post("/reset", h.handleReset)
			})

			if h.live != nil {
				r.Method(http.MethodGet, "/live", h.live)
			}
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
		h.metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.archive != nil {
		if err := h.archive.Ping(ctx); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "archive_unavailable", "dataset archive not ready", map[string]any{"error": err.Error()})
			return
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

// writeIngestionError maps the provider's error taxonomy onto HTTP. Upstream
// failures are the gateway's fault, bad uploads are the client's, and a
// superseded load is a conflict with a newer request.
func (h *Handler) writeIngestionError(w http.ResponseWriter, err error, upstream bool) {
	if errors.Is(err, controller.ErrSuperseded) {
		h.writeError(w, http.StatusConflict, "superseded", "a newer load already replaced the dataset", nil)
		return
	}

	var ie *provider.IngestionError
	if !errors.As(err, &ie) {
		h.writeError(w, http.StatusInternalServerError, "ingest_failed", "dataset load failed", nil)
		return
	}

	details := map[string]any{"kind": ie.Kind.String(), "error": ie.Error()}
	if upstream {
		h.writeError(w, http.StatusBadGateway, "upstream_failed", "remote mutation api unusable", details)
		return
	}
	switch ie.Kind {
	case provider.KindEmpty:
		h.writeError(w, http.StatusUnprocessableEntity, "no_usable_rows", "no rows survived normalization", details)
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_upload", "upload could not be parsed", details)
	}
}

type stateResponse struct {
	DatasetID      string  `json:"dataset_id"`
	Provenance     string  `json:"provenance"`
	RecordCount    int     `json:"record_count"`
	Dropped        int     `json:"dropped"`
	SelectedIndex  int     `json:"selected_index"`
	APICalls       int64   `json:"api_calls"`
	ColorDomainMin float64 `json:"color_domain_min"`
	ColorDomainMax float64 `json:"color_domain_max"`
	Synthetic      bool    `json:"synthetic"`
}

func (h *Handler) stateFrom(snap store.Snapshot) stateResponse {
	values := make([]float64, len(snap.Dataset.Records))
	for i, r := range snap.Dataset.Records {
		values[i] = r.MutationValue
	}
	scale := colorscale.FromValues(values)
	min, max := scale.Domain()

	prov := snap.Dataset.Provenance
	return stateResponse{
		DatasetID:      snap.Dataset.ID.String(),
		Provenance:     string(prov),
		RecordCount:    len(snap.Dataset.Records),
		Dropped:        snap.Dataset.Dropped,
		SelectedIndex:  snap.SelectedIndex,
		APICalls:       snap.APICalls,
		ColorDomainMin: min,
		ColorDomainMax: max,
		Synthetic:      prov == provider.ProvenanceGenerated || prov == provider.ProvenanceFallback,
	}
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.stateFrom(h.store.Snapshot()))
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"state":   h.stateFrom(snap),
		"records": snap.Dataset.Records,
	})
}

func (h *Handler) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	rec, ok := h.store.Resolve(snap.SelectedIndex)
	if !ok {
		h.writeJSON(w, http.StatusOK, map[string]any{"selected_index": store.NoSelection})
		return
	}

	values := make([]float64, len(snap.Dataset.Records))
	for i, rr := range snap.Dataset.Records {
		values[i] = rr.MutationValue
	}
	scale := colorscale.FromValues(values)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"selected_index": rec.Index,
		"record":         rec,
		"color":          scale.Hex(rec.MutationValue),
	})
}

type selectionUpdate struct {
	Index int `json:"index"`
}

func (h *Handler) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}

	// An unresolvable index is a silent no-op; the response carries
	// whatever the selection actually is now.
	if err := h.ctrl.SelectPoint(req.Index); err != nil {
		h.log.Error().Err(err).Msg("refresh after selection reported view errors")
	}
	h.writeJSON(w, http.StatusOK, h.stateFrom(h.store.Snapshot()))
}

func (h *Handler) handleDeleteSelection(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.ClearSelection(); err != nil {
		h.log.Error().Err(err).Msg("refresh after deselect reported view errors")
	}
	h.writeJSON(w, http.StatusOK, h.stateFrom(h.store.Snapshot()))
}

func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	ds, err := h.ctrl.LoadAPI(r.Context())
	if err != nil {
		h.writeIngestionError(w, err, true)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"state":   h.stateFrom(h.store.Snapshot()),
		"loaded":  len(ds.Records),
		"dropped": ds.Dropped,
	})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "read_failed", "could not read upload body", map[string]any{"error": err.Error()})
		return
	}

	ds, err := h.ctrl.LoadUpload(r.Context(), string(body))
	if err != nil {
		h.writeIngestionError(w, err, false)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"state":   h.stateFrom(h.store.Snapshot()),
		"loaded":  len(ds.Records),
		"dropped": ds.Dropped,
	})
}

type generateRequest struct {
	Count int `json:"count"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if r.ContentLength != 0 {
		if err := decodeJSONStrict(r, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
			return
		}
	}
	if req.Count < 0 || req.Count > 100000 {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "count out of range", map[string]any{"count": req.Count})
		return
	}

	ds, err := h.ctrl.LoadGenerated(r.Context(), req.Count)
	if err != nil {
		h.writeIngestionError(w, err, false)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"state":  h.stateFrom(h.store.Snapshot()),
		"loaded": len(ds.Records),
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Reset(); err != nil {
		h.log.Error().Err(err).Msg("refresh after reset reported view errors")
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"state": h.stateFrom(h.store.Snapshot()),
	})
}
