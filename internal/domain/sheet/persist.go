package sheet

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicops/clinicops/internal/platform/metrics"
	"github.com/clinicops/clinicops/internal/platform/websocket"
)

// DefaultSaveDebounce coalesces keystrokes into one write.
const DefaultSaveDebounce = 800 * time.Millisecond

// Saver writes sessions to the row repository. Scheduled saves are debounced
// per session; FlushNow writes at once. Writes of one session never overlap,
// and sessions never wait on each other.
type Saver struct {
	repo        RowRepository
	annotations AnnotationStore
	events      websocket.EventPublisher
	debounce    time.Duration
	timeout     time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	wg sync.WaitGroup
}

// SaverConfig configures a Saver. Annotations and Events are optional.
type SaverConfig struct {
	Repo        RowRepository
	Annotations AnnotationStore
	Events      websocket.EventPublisher
	Debounce    time.Duration
	Timeout     time.Duration
	Now         func() time.Time
	Logger      zerolog.Logger
}

func NewSaver(cfg SaverConfig) *Saver {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultSaveDebounce
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Saver{
		repo:        cfg.Repo,
		annotations: cfg.Annotations,
		events:      cfg.Events,
		debounce:    cfg.Debounce,
		timeout:     cfg.Timeout,
		now:         cfg.Now,
		logger:      cfg.Logger.With().Str("component", "sheet_saver").Logger(),
	}
}

// Schedule arms (or re-arms) the debounced save of s.
func (sv *Saver) Schedule(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil && s.timer.Stop() {
		sv.wg.Done()
	}
	sv.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(sv.debounce, func() {
		defer sv.wg.Done()
		s.mu.Lock()
		current := s.timer == t
		if current {
			s.timer = nil
		}
		s.mu.Unlock()
		if !current {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sv.timeout)
		defer cancel()
		_ = sv.save(ctx, s)
	})
	s.timer = t
}

// FlushNow cancels any pending debounce and writes s immediately.
func (sv *Saver) FlushNow(ctx context.Context, s *Session) error {
	sv.cancelTimer(s)
	return sv.save(ctx, s)
}

func (sv *Saver) cancelTimer(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil && s.timer.Stop() {
		// the callback will never run
		sv.wg.Done()
	}
	s.timer = nil
}

// Wait blocks until every armed save has fired or been cancelled.
func (sv *Saver) Wait() {
	sv.wg.Wait()
}

func (sv *Saver) save(ctx context.Context, s *Session) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snapshot, ok, err := s.beginSave()
	if err != nil {
		sv.logger.Error().Err(err).Str("sheet", s.Key.String()).Msg("failed to snapshot rows")
		return err
	}
	if !ok {
		return nil
	}

	stored := Positioned(snapshot)
	start := sv.now()
	ids, saveErr := sv.repo.ReplaceRows(ctx, s.Key, stored)
	metrics.ObserveSave(sv.now().Sub(start), saveErr)

	rewritten, again := s.finishSave(snapshot, ids, saveErr, sv.now())
	log := sv.logger.With().Str("sheet", s.Key.String()).Logger()

	if saveErr != nil {
		log.Error().Err(saveErr).Int("rows", len(stored)).Msg("sheet save failed")
		sv.publish(ctx, s, websocket.EventSaveFailed, map[string]string{"error": saveErr.Error()})
		return saveErr
	}

	if missing := unmatchedLocal(stored, ids); len(missing) > 0 {
		metrics.AddUnmatchedRows(len(missing))
		log.Warn().Int("rows", len(missing)).Msg("saved rows came back without server ids, keeping local ids")
	}
	if len(rewritten) > 0 && sv.annotations != nil {
		if err := sv.annotations.Rekey(ctx, s.Key.ClinicID, KindProviderSheet, rewritten); err != nil {
			log.Error().Err(err).Msg("failed to carry annotations to server ids")
		}
	}

	log.Debug().Int("rows", len(stored)).Int("new_ids", len(rewritten)).Msg("sheet saved")
	sv.publish(ctx, s, websocket.EventSaved, map[string]interface{}{"ids": rewritten})
	if again {
		sv.Schedule(s)
	}
	return nil
}

func unmatchedLocal(stored []StoredRow, ids map[RowID]RowID) []RowID {
	var out []RowID
	for _, r := range stored {
		if !r.Row.ID.IsLocal() {
			continue
		}
		if _, ok := ids[r.Row.ID]; !ok {
			out = append(out, r.Row.ID)
		}
	}
	return out
}

func (sv *Saver) publish(ctx context.Context, s *Session, typ string, data interface{}) {
	if sv.events == nil {
		return
	}
	s.mu.Lock()
	rev := s.revision
	s.mu.Unlock()
	ev, err := websocket.NewEvent(s.Key.Topic(), typ, rev, data)
	if err != nil {
		sv.logger.Error().Err(err).Str("type", typ).Msg("failed to encode event")
		return
	}
	if err := sv.events.Publish(ctx, ev); err != nil {
		sv.logger.Warn().Err(err).Str("type", typ).Msg("failed to publish event")
	}
}
