package sheet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinicops/clinicops/internal/platform/metrics"
	"github.com/clinicops/clinicops/internal/platform/websocket"
)

// Actor is the caller of a sheet operation.
type Actor struct {
	UserID         string
	View           ViewContext
	HighlightColor string
}

// Config tunes the sheet service.
type Config struct {
	MinRows          int
	SaveDebounce     time.Duration
	SaveTimeout      time.Duration
	IdleTTL          time.Duration
	DefaultHighlight string
	ReservedColor    string
}

// Deps are the collaborators of the sheet service. Events is optional.
type Deps struct {
	Rows        RowRepository
	Patients    PatientSource
	Catalog     CatalogSource
	Locks       LockSource
	Annotations AnnotationStore
	Events      websocket.EventPublisher
	IDs         *IDGenerator
	Now         func() time.Time
	Logger      zerolog.Logger
}

type Service struct {
	rows        RowRepository
	patients    PatientSource
	catalog     CatalogSource
	locks       LockSource
	annotations AnnotationStore
	events      websocket.EventPublisher

	store      *RowStore
	saver      *Saver
	reconciler *Reconciler
	cfg        Config
	now        func() time.Time
	logger     zerolog.Logger
}

func NewService(cfg Config, d Deps) *Service {
	if cfg.MinRows < 1 {
		cfg.MinRows = DefaultMinRows
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.IDs == nil {
		d.IDs = NewIDGeneratorWithClock(d.Now)
	}
	logger := d.Logger.With().Str("component", "sheet").Logger()
	return &Service{
		rows:        d.Rows,
		patients:    d.Patients,
		catalog:     d.Catalog,
		locks:       d.Locks,
		annotations: d.Annotations,
		events:      d.Events,
		store:       NewRowStore(),
		saver: NewSaver(SaverConfig{
			Repo:        d.Rows,
			Annotations: d.Annotations,
			Events:      d.Events,
			Debounce:    cfg.SaveDebounce,
			Timeout:     cfg.SaveTimeout,
			Now:         d.Now,
			Logger:      d.Logger,
		}),
		reconciler: NewReconciler(d.IDs, cfg.MinRows),
		cfg:        cfg,
		now:        d.Now,
		logger:     logger,
	}
}

// Store exposes the session registry.
func (s *Service) Store() *RowStore { return s.store }

// open returns the session of key, loading it from the repository on first
// use.
func (s *Service) open(ctx context.Context, key SheetKey) (*Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if sess, ok := s.store.Get(key); ok {
		sess.touch(s.now())
		return sess, nil
	}
	stored, err := s.rows.ListRows(ctx, key)
	if err != nil {
		return nil, err
	}
	sess := s.store.PutIfAbsent(newSession(key, PlaceRows(key.OwnerID, stored, s.cfg.MinRows), s.now()))
	metrics.SetActiveSessions(s.store.Len())
	s.logger.Debug().Str("sheet", key.String()).Int("rows", len(stored)).Msg("sheet session opened")
	return sess, nil
}

// viewInputs is everything a request reads besides the session itself.
type viewInputs struct {
	locks       LockFlags
	decorations map[CellKey]CellDecoration
	env         DeriveEnv
}

// load fetches the lookups a request needs concurrently. Derivation tables
// are only fetched when withEnv is set.
func (s *Service) load(ctx context.Context, key SheetKey, actor Actor, withEnv bool) (viewInputs, error) {
	var in viewInputs
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		flags, err := s.locks.Flags(gctx, key.ClinicID, KindProviderSheet, key.OwnerID)
		in.locks = flags
		return err
	})
	g.Go(func() error {
		dec, err := s.annotations.Decorations(gctx, key.ClinicID, KindProviderSheet)
		in.decorations = dec
		return err
	})
	if withEnv {
		in.env.HighlightColor = actor.HighlightColor
		if in.env.HighlightColor == "" {
			in.env.HighlightColor = s.cfg.DefaultHighlight
		}
		in.env.ReservedColor = s.cfg.ReservedColor
		g.Go(func() error {
			idx, err := s.patients.PatientIndex(gctx, key.ClinicID)
			in.env.Patients = idx
			return err
		})
		g.Go(func() error {
			colors, codes, err := s.catalog.Tables(gctx, key.ClinicID)
			in.env.Colors, in.env.Codes = colors, codes
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return viewInputs{}, fmt.Errorf("load sheet context: %w", err)
	}
	return in, nil
}

func (s *Service) grid(sess *Session, actor Actor, in viewInputs) (Grid, error) {
	snap, err := sess.View()
	if err != nil {
		return Grid{}, err
	}
	return BuildGrid(sess.Key, snap, ProjectColumns(actor.View, in.locks), in.decorations), nil
}

// View opens the sheet if needed and renders it for actor.
func (s *Service) View(ctx context.Context, key SheetKey, actor Actor) (Grid, error) {
	sess, err := s.open(ctx, key)
	if err != nil {
		return Grid{}, err
	}
	in, err := s.load(ctx, key, actor, false)
	if err != nil {
		return Grid{}, err
	}
	return s.grid(sess, actor, in)
}

// Reload refetches the sheet from the store, discarding unsaved local state.
func (s *Service) Reload(ctx context.Context, key SheetKey, actor Actor) (Grid, error) {
	sess, err := s.open(ctx, key)
	if err != nil {
		return Grid{}, err
	}
	s.saver.cancelTimer(sess)
	stored, err := s.rows.ListRows(ctx, key)
	if err != nil {
		return Grid{}, err
	}
	sess.Reload(PlaceRows(key.OwnerID, stored, s.cfg.MinRows))
	return s.View(ctx, key, actor)
}

// EditResult is the outcome of an edit batch together with the new view.
type EditResult struct {
	Result
	Grid Grid `json:"grid"`
}

// ApplyEdits applies one grid edit batch atomically and schedules a save.
func (s *Service) ApplyEdits(ctx context.Context, key SheetKey, actor Actor, batch []Change) (EditResult, error) {
	return s.applyEdits(ctx, key, actor, func([]SheetRow, Projection) ([]Change, error) {
		return batch, nil
	})
}

// applyEdits builds the batch from the session rows under the session lock, so
// row indexes resolved by build address the rows the batch is applied to.
func (s *Service) applyEdits(ctx context.Context, key SheetKey, actor Actor, build func(rows []SheetRow, proj Projection) ([]Change, error)) (EditResult, error) {
	sess, err := s.open(ctx, key)
	if err != nil {
		return EditResult{}, err
	}
	in, err := s.load(ctx, key, actor, true)
	if err != nil {
		return EditResult{}, err
	}
	proj := ProjectColumns(actor.View, in.locks)

	var res Result
	rev, err := sess.Update(s.now(), func(rows []SheetRow, _ uint64) ([]SheetRow, bool, error) {
		batch, err := build(rows, proj)
		if err != nil {
			return nil, false, err
		}
		r, err := s.reconciler.Apply(key, proj, rows, batch, in.env)
		if err != nil {
			return nil, false, err
		}
		res = r
		return r.Rows, r.Changed(), nil
	})
	metrics.ObserveEditBatch(err)
	if err != nil {
		return EditResult{}, err
	}

	for _, rj := range res.Rejected {
		metrics.IncRejectedEdit(rj.Reason)
		s.logger.Debug().Str("sheet", key.String()).Int("row", rj.Change.Row).Int("col", rj.Change.Col).
			Str("reason", rj.Reason).Msg("edit rejected")
	}
	if len(res.Annotations) > 0 {
		if err := s.annotations.ApplyEffects(ctx, key.ClinicID, KindProviderSheet, actor.UserID, res.Annotations); err != nil {
			s.logger.Error().Err(err).Str("sheet", key.String()).Msg("failed to apply highlight effects")
		} else if in.decorations, err = s.annotations.Decorations(ctx, key.ClinicID, KindProviderSheet); err != nil {
			return EditResult{}, err
		}
	}
	if res.Changed() {
		s.saver.Schedule(sess)
		s.publish(ctx, key, websocket.EventRowsChanged, rev, res.Mutations)
	}

	g, err := s.grid(sess, actor, in)
	if err != nil {
		return EditResult{}, err
	}
	res.Rows = nil
	return EditResult{Result: res, Grid: g}, nil
}

// PatchCell writes one field of a row addressed by id. Grid fields go through
// the same projection and derivations as grid edits; color shadows are
// written as given and are reserved to clinic staff.
func (s *Service) PatchCell(ctx context.Context, key SheetKey, actor Actor, m Mutation) (EditResult, error) {
	sess, err := s.open(ctx, key)
	if err != nil {
		return EditResult{}, err
	}
	if IsGridField(m.Field) {
		return s.applyEdits(ctx, key, actor, func(rows []SheetRow, proj Projection) ([]Change, error) {
			col := proj.IndexOf(m.Field)
			if col < 0 || !proj.Editable(col) {
				return nil, fmt.Errorf("%w: %s", ErrReadOnlyField, m.Field)
			}
			index, ok := indexByID(rows)[m.RowID]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrRowNotFound, m.RowID)
			}
			return []Change{{Row: index, Col: col, New: m.Value}}, nil
		})
	}

	if actor.View.Role != RoleClinicStaff || !actor.View.CanEdit {
		return EditResult{}, fmt.Errorf("%w: %s", ErrReadOnlyField, m.Field)
	}
	m.OwnerID = key.OwnerID
	rev, err := s.store.Apply(key, m, s.now())
	if err != nil {
		return EditResult{}, err
	}
	s.saver.Schedule(sess)
	s.publish(ctx, key, websocket.EventRowsChanged, rev, []Mutation{m})
	g, err := s.View(ctx, key, actor)
	if err != nil {
		return EditResult{}, err
	}
	return EditResult{Result: Result{Mutations: []Mutation{m}, Save: &SaveRequest{Key: key}}, Grid: g}, nil
}

// MoveResult reports whether a move was applied. Repeated deliveries of the
// same move carry a stale base revision and are ignored.
type MoveResult struct {
	Applied bool `json:"applied"`
	Grid    Grid `json:"grid"`
}

// MoveRows reorders a contiguous block of rows.
func (s *Service) MoveRows(ctx context.Context, key SheetKey, actor Actor, sources []int, dest int, baseRevision uint64) (MoveResult, error) {
	if !canReorder(actor.View) {
		return MoveResult{}, fmt.Errorf("%w: rows cannot be reordered", ErrReadOnlyField)
	}
	sess, err := s.open(ctx, key)
	if err != nil {
		return MoveResult{}, err
	}
	rev, err := sess.Update(s.now(), func(rows []SheetRow, current uint64) ([]SheetRow, bool, error) {
		if current != baseRevision {
			return nil, false, ErrStaleRevision
		}
		out, err := MoveRows(rows, sources, dest)
		return out, err == nil, err
	})
	applied := err == nil
	switch {
	case errors.Is(err, ErrStaleRevision):
		s.logger.Debug().Str("sheet", key.String()).Uint64("base", baseRevision).Msg("duplicate row move ignored")
	case err != nil:
		return MoveResult{}, err
	default:
		s.saver.Schedule(sess)
		s.publish(ctx, key, websocket.EventRowsChanged, rev, map[string]interface{}{"moved": sources, "target": dest})
	}

	in, err := s.load(ctx, key, actor, false)
	if err != nil {
		return MoveResult{}, err
	}
	g, err := s.grid(sess, actor, in)
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Applied: applied, Grid: g}, nil
}

func canReorder(v ViewContext) bool {
	return v.CanEdit && (v.Role == RoleClinicStaff || v.Role == RoleScheduler)
}

// DeleteRow removes a row and persists the sheet at once. A failed save is
// reported in the returned grid, not as an error.
func (s *Service) DeleteRow(ctx context.Context, key SheetKey, actor Actor, index int) (Grid, error) {
	if !actor.View.CanEdit || !hasEditableColumn(ProjectColumns(actor.View, nil)) {
		return Grid{}, fmt.Errorf("%w: rows cannot be deleted", ErrReadOnlyField)
	}
	sess, err := s.open(ctx, key)
	if err != nil {
		return Grid{}, err
	}
	var removed SheetRow
	rev, err := sess.Update(s.now(), func(rows []SheetRow, _ uint64) ([]SheetRow, bool, error) {
		out, r, err := DeleteRow(key.OwnerID, rows, index, s.cfg.MinRows)
		removed = r
		return out, err == nil, err
	})
	if err != nil {
		return Grid{}, err
	}
	s.publish(ctx, key, websocket.EventRowsChanged, rev, map[string]interface{}{"deleted": removed.ID})
	if err := s.saver.FlushNow(ctx, sess); err != nil {
		s.logger.Warn().Err(err).Str("sheet", key.String()).Msg("save after delete failed")
	}
	return s.View(ctx, key, actor)
}

// Flush writes pending edits of key immediately.
func (s *Service) Flush(ctx context.Context, key SheetKey) error {
	sess, ok := s.store.Get(key)
	if !ok {
		return ErrSessionNotFound
	}
	return s.saver.FlushNow(ctx, sess)
}

// Close flushes and forgets the session of key. Later requests reopen it from
// the store. An explicit close drops pending edits even when the flush fails.
func (s *Service) Close(ctx context.Context, key SheetKey) error {
	sess, ok := s.store.Get(key)
	if !ok {
		return ErrSessionNotFound
	}
	err := s.saver.FlushNow(ctx, sess)
	if err != nil {
		s.logger.Warn().Err(err).Str("sheet", key.String()).Msg("final flush failed, unsaved edits dropped")
	}
	s.drop(ctx, sess)
	return err
}

func (s *Service) drop(ctx context.Context, sess *Session) {
	s.store.Drop(sess.Key)
	s.saver.cancelTimer(sess)
	metrics.SetActiveSessions(s.store.Len())
	s.publish(ctx, sess.Key, websocket.EventClosed, 0, nil)
}

// ContextMenu lists the actions available on a cell.
func (s *Service) ContextMenu(ctx context.Context, key SheetKey, actor Actor, row, col int) ([]MenuItem, error) {
	sess, err := s.open(ctx, key)
	if err != nil {
		return nil, err
	}
	in, err := s.load(ctx, key, actor, false)
	if err != nil {
		return nil, err
	}
	snap, err := sess.View()
	if err != nil {
		return nil, err
	}
	proj := ProjectColumns(actor.View, in.locks)
	return ContextMenu(actor.View, proj, snap.Rows, in.decorations, in.locks, row, col), nil
}

// Run evicts idle sessions until ctx is done.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evictIdle(ctx)
		}
	}
}

// evictIdle closes sessions idle past IdleTTL. A session whose flush fails is
// kept with its local rows and retried on the next tick.
func (s *Service) evictIdle(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.IdleTTL)
	for _, sess := range s.store.Sessions() {
		if sess.idleSince().After(cutoff) {
			continue
		}
		if err := s.saver.FlushNow(ctx, sess); err != nil {
			s.logger.Warn().Err(err).Str("sheet", sess.Key.String()).Msg("idle session kept, flush failed")
			continue
		}
		s.drop(ctx, sess)
	}
}

// Shutdown flushes every open session and waits for in-flight saves.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	for _, sess := range s.store.Sessions() {
		if err := s.saver.FlushNow(ctx, sess); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sess.Key, err))
		}
	}
	s.saver.Wait()
	return errors.Join(errs...)
}

func (s *Service) publish(ctx context.Context, key SheetKey, typ string, rev uint64, data interface{}) {
	if s.events == nil {
		return
	}
	ev, err := websocket.NewEvent(key.Topic(), typ, rev, data)
	if err != nil {
		s.logger.Error().Err(err).Str("type", typ).Msg("failed to encode event")
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("type", typ).Msg("failed to publish event")
	}
}
