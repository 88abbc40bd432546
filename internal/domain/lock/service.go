package lock

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinicops/clinicops/internal/domain/sheet"
	"github.com/clinicops/clinicops/internal/platform/metrics"
	"github.com/clinicops/clinicops/internal/platform/websocket"
)

// Service reads and toggles column locks. It is the sheet engine's LockSource.
type Service struct {
	repo   Repository
	events websocket.EventPublisher
	logger zerolog.Logger
}

func NewService(repo Repository, events websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: events,
		logger: logger.With().Str("component", "locks").Logger(),
	}
}

// Get returns the lock record of scope. A scope without a record reads as all
// unlocked; the record is created by the first write.
func (s *Service) Get(ctx context.Context, scope Scope) (*Record, error) {
	rec, err := s.repo.Get(ctx, scope)
	if errors.Is(err, ErrNotFound) {
		return Default(scope), nil
	}
	if err != nil {
		return nil, err
	}
	full := Default(scope)
	full.ID, full.UpdatedBy, full.UpdatedAt = rec.ID, rec.UpdatedBy, rec.UpdatedAt
	for f, l := range rec.Fields {
		if Lockable(f) {
			full.Fields[f] = l
		}
	}
	return full, nil
}

// Flags merges the clinic-wide locks of kind with those of ownerID: a field is
// locked on an owner's sheet when either record locks it.
func (s *Service) Flags(ctx context.Context, clinicID string, kind sheet.SheetKind, ownerID string) (sheet.LockFlags, error) {
	clinic, err := s.Get(ctx, Scope{ClinicID: clinicID, Kind: kind})
	if err != nil {
		return nil, err
	}
	flags := clinic.Flags()
	if ownerID == "" {
		return flags, nil
	}
	owner, err := s.Get(ctx, Scope{ClinicID: clinicID, Kind: kind, OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	for f, locked := range owner.Flags() {
		if locked {
			flags[f] = true
		}
	}
	return flags, nil
}

// Toggle flips the lock of one field and returns the refetched record. A
// comment may accompany locking; unlocking clears it.
func (s *Service) Toggle(ctx context.Context, scope Scope, field sheet.Field, comment *string, actor string) (*Record, error) {
	if !Lockable(field) {
		return nil, ErrUnknownField
	}
	current, err := s.Get(ctx, scope)
	if err != nil {
		return nil, err
	}
	next := FieldLock{Locked: !current.Fields[field].Locked}
	if next.Locked {
		next.Comment = cleanComment(comment)
	}

	err = s.repo.SetField(ctx, scope, field, next, actor)
	metrics.ObserveLockToggle(err)
	if err != nil {
		s.logger.Error().Err(err).Str("clinic_id", scope.ClinicID).Str("field", string(field)).Msg("lock toggle failed")
		return nil, err
	}
	s.logger.Info().
		Str("clinic_id", scope.ClinicID).
		Str("sheet_kind", string(scope.Kind)).
		Str("owner_id", scope.OwnerID).
		Str("field", string(field)).
		Bool("locked", next.Locked).
		Str("actor", actor).
		Msg("column lock toggled")

	return s.refetch(ctx, scope)
}

// Replace writes the complete lock state of scope.
func (s *Service) Replace(ctx context.Context, scope Scope, fields map[sheet.Field]FieldLock, actor string) (*Record, error) {
	clean := make(map[sheet.Field]FieldLock, len(fields))
	for f, l := range fields {
		if !Lockable(f) {
			return nil, ErrUnknownField
		}
		if !l.Locked {
			l.Comment = nil
		}
		l.Comment = cleanComment(l.Comment)
		clean[f] = l
	}
	if err := s.repo.Replace(ctx, scope, clean, actor); err != nil {
		s.logger.Error().Err(err).Str("clinic_id", scope.ClinicID).Msg("lock replace failed")
		return nil, err
	}
	return s.refetch(ctx, scope)
}

func (s *Service) refetch(ctx context.Context, scope Scope) (*Record, error) {
	rec, err := s.Get(ctx, scope)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		ev, err := websocket.NewEvent(scope.Topic(), websocket.EventLocks, 0, rec)
		if err == nil {
			err = s.events.Publish(ctx, ev)
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish lock change")
		}
	}
	return rec, nil
}

func cleanComment(c *string) *string {
	if c == nil {
		return nil
	}
	v := strings.TrimSpace(*c)
	if v == "" {
		return nil
	}
	return &v
}
