package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mutamap/core-go/internal/colorscale"
	"mutamap/core-go/internal/metrics"
	"mutamap/core-go/internal/provider"
	"mutamap/core-go/internal/record"
	"mutamap/core-go/internal/store"
)

// ErrSuperseded is returned when a load completes after a newer load or
// reset has already taken over. The stale result is discarded; the newer
// state stays authoritative.
var ErrSuperseded = errors.New("load superseded by a newer request")

// Frame is the snapshot every view receives on a refresh. Map and scatter
// views get the identical value so they can never disagree on dataset or
// selection. OnPointClick is the one capability through which a view
// re-enters the core.
type Frame struct {
	DatasetID     uuid.UUID
	Provenance    provider.Provenance
	Records       []record.Record
	SelectedIndex int
	Scale         colorscale.Scale
	APICalls      int64
	OnPointClick  func(index int)
}

// View renders the full dataset and highlights the selection. Map and
// scatter adapters both satisfy this.
type View interface {
	Update(Frame) error
}

// DetailsView renders the selected record, or clears when rec is nil. It
// never calls back into the core.
type DetailsView interface {
	Render(rec *record.Record, scale colorscale.Scale) error
}

// Archive persists dataset snapshots across restarts. Optional.
type Archive interface {
	SaveDataset(ctx context.Context, ds provider.Dataset) error
	LatestDataset(ctx context.Context) (provider.Dataset, bool, error)
}

// Controller drives the update protocol: every state mutation funnels
// through it, and after each one it pushes a consistent snapshot to all
// registered views.
type Controller struct {
	log      zerolog.Logger
	store    *store.Store
	provider *provider.Provider
	metrics  *metrics.Metrics
	archive  Archive

	loadSeq atomic.Uint64

	mu           sync.Mutex
	mapViews     []View
	scatterViews []View
	detailViews  []DetailsView
}

func New(log zerolog.Logger, st *store.Store, p *provider.Provider, m *metrics.Metrics, archive Archive) *Controller {
	return &Controller{
		log:      log,
		store:    st,
		provider: p,
		metrics:  m,
		archive:  archive,
	}
}

// AttachMapView registers a map-style view. Views must not call
// OnPointClick from inside Update.
func (c *Controller) AttachMapView(v View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mapViews = append(c.mapViews, v)
}

// AttachScatterView registers a scatter-style view.
func (c *Controller) AttachScatterView(v View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scatterViews = append(c.scatterViews, v)
}

// AttachDetailsView registers a details panel.
func (c *Controller) AttachDetailsView(v DetailsView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detailViews = append(c.detailViews, v)
}

// Bootstrap seeds the store at startup: the most recent archived dataset if
// one exists, otherwise the provider's initial load (API with synthetic
// fallback). The store is never left empty.
func (c *Controller) Bootstrap(ctx context.Context) error {
	id := c.loadSeq.Add(1)

	if c.archive != nil {
		ds, ok, err := c.archive.LatestDataset(ctx)
		switch {
		case err != nil:
			c.log.Warn().Err(err).Msg("archive restore failed, falling back to initial load")
		case ok:
			c.log.Info().Str("dataset_id", ds.ID.String()).Str("provenance", string(ds.Provenance)).Msg("restored dataset from archive")
			return c.commit(ctx, id, ds, false, false)
		}
	}

	ds := c.provider.LoadInitial(ctx)
	if ds.Provenance == provider.ProvenanceAPI {
		c.store.RecordAPICall()
		c.metrics.IncAPICall()
	}
	return c.commit(ctx, id, ds, false, true)
}

// LoadAPI replaces the current dataset from the remote API.
func (c *Controller) LoadAPI(ctx context.Context) (provider.Dataset, error) {
	id := c.loadSeq.Add(1)

	ds, err := c.provider.FetchFromAPI(ctx)
	if err != nil {
		c.metrics.ObserveLoad("api", "error")
		return provider.Dataset{}, err
	}

	c.store.RecordAPICall()
	c.metrics.IncAPICall()

	if err := c.commit(ctx, id, ds, true, true); err != nil {
		c.metrics.ObserveLoad("api", outcomeOf(err))
		return provider.Dataset{}, err
	}
	c.metrics.ObserveLoad("api", "ok")
	return ds, nil
}

// LoadUpload replaces the current dataset from uploaded tabular text.
func (c *Controller) LoadUpload(ctx context.Context, contents string) (provider.Dataset, error) {
	id := c.loadSeq.Add(1)

	ds, err := c.provider.ParseUpload(contents)
	if err != nil {
		c.metrics.ObserveLoad("upload", "error")
		return provider.Dataset{}, err
	}

	if err := c.commit(ctx, id, ds, true, true); err != nil {
		c.metrics.ObserveLoad("upload", outcomeOf(err))
		return provider.Dataset{}, err
	}
	c.metrics.ObserveLoad("upload", "ok")
	return ds, nil
}

// LoadGenerated replaces the current dataset with count synthetic records.
func (c *Controller) LoadGenerated(ctx context.Context, count int) (provider.Dataset, error) {
	id := c.loadSeq.Add(1)

	ds := c.provider.GenerateRandom(count)
	if err := c.commit(ctx, id, ds, true, true); err != nil {
		c.metrics.ObserveLoad("generated", outcomeOf(err))
		return provider.Dataset{}, err
	}
	c.metrics.ObserveLoad("generated", "ok")
	return ds, nil
}

// Reset restores the original dataset and deselects. It counts as the newest
// request, so an in-flight load that completes later is discarded.
func (c *Controller) Reset() error {
	c.loadSeq.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.ResetToOriginal()
	return c.refreshLocked()
}

// SelectPoint is the view re-entry path: store the selection (unresolvable
// indices are a no-op) and refresh everyone.
func (c *Controller) SelectPoint(index int) error {
	if !c.store.Select(index) {
		c.log.Debug().Int("index", index).Msg("ignoring selection of unknown index")
	}
	return c.Refresh()
}

// ClearSelection deselects and refreshes.
func (c *Controller) ClearSelection() error {
	c.store.Select(store.NoSelection)
	return c.Refresh()
}

// Refresh pushes one consistent snapshot to every registered view.
func (c *Controller) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked()
}

// commit installs a completed load, unless a newer request already won.
func (c *Controller) commit(ctx context.Context, id uint64, ds provider.Dataset, preserveOriginal, save bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.loadSeq.Load() {
		c.log.Info().
			Str("dataset_id", ds.ID.String()).
			Str("provenance", string(ds.Provenance)).
			Msg("discarding stale load result")
		return ErrSuperseded
	}

	c.store.ReplaceDataset(ds, preserveOriginal)

	if save && c.archive != nil {
		if err := c.archive.SaveDataset(ctx, ds); err != nil {
			c.log.Warn().Err(err).Msg("failed to archive dataset")
		}
	}

	return c.refreshLocked()
}

func (c *Controller) refreshLocked() error {
	start := time.Now()
	snap := c.store.Snapshot()

	values := make([]float64, len(snap.Dataset.Records))
	for i, r := range snap.Dataset.Records {
		values[i] = r.MutationValue
	}
	scale := colorscale.FromValues(values)

	frame := Frame{
		DatasetID:     snap.Dataset.ID,
		Provenance:    snap.Dataset.Provenance,
		Records:       snap.Dataset.Records,
		SelectedIndex: snap.SelectedIndex,
		Scale:         scale,
		APICalls:      snap.APICalls,
		OnPointClick: func(index int) {
			_ = c.SelectPoint(index)
		},
	}

	var selected *record.Record
	if rec, ok := c.store.Resolve(snap.SelectedIndex); ok {
		selected = &rec
	}

	var errs []error
	for i, v := range c.mapViews {
		if err := safeUpdate(v, frame); err != nil {
			c.log.Error().Err(err).Int("view", i).Msg("map view update failed")
			errs = append(errs, err)
		}
	}
	for i, v := range c.scatterViews {
		if err := safeUpdate(v, frame); err != nil {
			c.log.Error().Err(err).Int("view", i).Msg("scatter view update failed")
			errs = append(errs, err)
		}
	}
	for i, v := range c.detailViews {
		if err := safeRender(v, selected, scale); err != nil {
			c.log.Error().Err(err).Int("view", i).Msg("details render failed")
			errs = append(errs, err)
		}
	}

	c.metrics.ObserveRefresh(time.Since(start))
	return errors.Join(errs...)
}

// safeUpdate keeps one misbehaving view from taking down the refresh cycle.
func safeUpdate(v View, frame Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("view panicked: %v", r)
		}
	}()
	return v.Update(frame)
}

func safeRender(v DetailsView, rec *record.Record, scale colorscale.Scale) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("details view panicked: %v", r)
		}
	}()
	return v.Render(rec, scale)
}

func outcomeOf(err error) string {
	if errors.Is(err, ErrSuperseded) {
		return "superseded"
	}
	return "error"
}
