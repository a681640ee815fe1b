package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mutamap/core-go/internal/metrics"
	"mutamap/core-go/internal/record"
)

// Provenance says where a dataset came from. It is the authoritative signal
// for "synthetic data in use"; index magnitude is kept only for legacy
// clients (see ReservedIndexFloor).
type Provenance string

const (
	ProvenanceAPI       Provenance = "api"
	ProvenanceUpload    Provenance = "upload"
	ProvenanceGenerated Provenance = "generated"
	ProvenanceFallback  Provenance = "fallback"
)

// ReservedIndexFloor is the first index used for synthetic records. Real
// sources keep their own indices; generated data starts here so clients that
// still key off index magnitude keep working.
const ReservedIndexFloor = 1000

// Dataset is one ordered batch of normalized records plus its ingestion
// lineage. Dropped counts rows rejected during normalization.
type Dataset struct {
	ID         uuid.UUID       `json:"id"`
	Provenance Provenance      `json:"provenance"`
	Records    []record.Record `json:"records"`
	Dropped    int             `json:"dropped"`
}

// Clone returns a copy whose record slice is independent of the original.
func (d Dataset) Clone() Dataset {
	out := d
	out.Records = record.Clone(d.Records)
	return out
}

// Kind classifies a whole-source ingestion failure.
type Kind int

const (
	KindNetwork Kind = iota
	KindParse
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	case KindEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// IngestionError is a recoverable whole-source failure. Callers fall back to
// another source or surface a message; per-record failures never become one.
type IngestionError struct {
	Kind Kind
	Err  error
}

func (e *IngestionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ingestion failed (%s)", e.Kind)
	}
	return fmt.Sprintf("ingestion failed (%s): %v", e.Kind, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

func ingestErr(kind Kind, err error) error {
	return &IngestionError{Kind: kind, Err: err}
}

// Options tunes a Provider. Zero values pick sane defaults.
type Options struct {
	APIBaseURL    string
	HTTPTimeout   time.Duration
	GenerateCount int
}

// Provider produces normalized datasets from the remote API, uploaded
// tabular text, or the synthetic generator.
type Provider struct {
	log           zerolog.Logger
	client        *http.Client
	baseURL       string
	generateCount int
	metrics       *metrics.Metrics
}

func New(log zerolog.Logger, opts Options, m *metrics.Metrics) *Provider {
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	count := opts.GenerateCount
	if count <= 0 {
		count = 100
	}
	return &Provider{
		log:           log,
		client:        &http.Client{Timeout: timeout},
		baseURL:       strings.TrimRight(opts.APIBaseURL, "/"),
		generateCount: count,
		metrics:       m,
	}
}

// LoadInitial fetches from the API and, on any ingestion failure, falls back
// to a generated dataset marked ProvenanceFallback. It never returns an
// empty dataset; the dashboard must always have data to show.
func (p *Provider) LoadInitial(ctx context.Context) Dataset {
	ds, err := p.FetchFromAPI(ctx)
	if err == nil {
		return ds
	}
	p.log.Warn().Err(err).Msg("initial api load failed, generating fallback data")
	fallback := p.GenerateRandom(p.generateCount)
	fallback.Provenance = ProvenanceFallback
	return fallback
}

// FetchFromAPI performs the remote call and normalizes every returned row.
func (p *Provider) FetchFromAPI(ctx context.Context) (Dataset, error) {
	if p.baseURL == "" {
		return Dataset{}, ingestErr(KindNetwork, errors.New("api base url not configured"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/mutations", nil)
	if err != nil {
		return Dataset{}, ingestErr(KindNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Dataset{}, ingestErr(KindNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Dataset{}, ingestErr(KindNetwork, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return Dataset{}, ingestErr(KindParse, err)
	}

	ds, err := p.normalizeBatch(rows, ProvenanceAPI, 0)
	if err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

// ParseUpload parses delimited tabular text and normalizes each row. Rows
// failing normalization are dropped and counted; the upload only fails when
// the header misses a required column or zero rows survive.
func (p *Provider) ParseUpload(contents string) (Dataset, error) {
	rows, err := parseTabular(contents)
	if err != nil {
		return Dataset{}, err
	}
	return p.normalizeBatch(rows, ProvenanceUpload, 0)
}

func (p *Provider) normalizeBatch(rows []map[string]any, prov Provenance, indexBase int) (Dataset, error) {
	n := record.NewNormalizer(indexBase)
	out := make([]record.Record, 0, len(rows))
	dropped := 0
	for i, raw := range rows {
		rec, err := n.Normalize(raw)
		if err != nil {
			dropped++
			p.log.Debug().Err(err).Int("row", i).Str("source", string(prov)).Msg("dropped row")
			continue
		}
		out = append(out, rec)
	}

	p.metrics.ObserveIngestion(string(prov), len(out), dropped)

	if len(out) == 0 {
		return Dataset{}, ingestErr(KindEmpty, fmt.Errorf("no usable rows (%d dropped)", dropped))
	}
	return Dataset{
		ID:         uuid.New(),
		Provenance: prov,
		Records:    out,
		Dropped:    dropped,
	}, nil
}
