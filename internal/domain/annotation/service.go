package annotation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinicops/clinicops/internal/domain/sheet"
	"github.com/clinicops/clinicops/internal/platform/metrics"
	"github.com/clinicops/clinicops/internal/platform/websocket"
)

// Service owns cell highlights and comments. It is the sheet engine's
// AnnotationStore.
type Service struct {
	repo   Repository
	events websocket.EventPublisher
	logger zerolog.Logger
}

func NewService(repo Repository, events websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: events,
		logger: logger.With().Str("component", "annotations").Logger(),
	}
}

func Topic(clinicID string, kind sheet.SheetKind) string {
	return fmt.Sprintf("sheet:%s:annotations:%s", clinicID, kind)
}

func (s *Service) List(ctx context.Context, clinicID string, kind sheet.SheetKind) ([]*Annotation, error) {
	return s.repo.List(ctx, clinicID, kind)
}

func (s *Service) Decorations(ctx context.Context, clinicID string, kind sheet.SheetKind) (map[sheet.CellKey]sheet.CellDecoration, error) {
	list, err := s.repo.List(ctx, clinicID, kind)
	if err != nil {
		return nil, err
	}
	out := make(map[sheet.CellKey]sheet.CellDecoration, len(list))
	for _, a := range list {
		out[sheet.CellKey{RowID: a.RowID, Field: a.Field}] = a.Decoration()
	}
	return out, nil
}

func (s *Service) SetHighlight(ctx context.Context, ref Ref, color, actor string) (*Annotation, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	color = strings.TrimSpace(color)
	if color == "" {
		return nil, fmt.Errorf("%w: color is required", ErrInvalid)
	}
	err := s.repo.SetHighlight(ctx, ref, &color, actor)
	return s.after(ctx, ref, "highlight", actor, err)
}

func (s *Service) ClearHighlight(ctx context.Context, ref Ref, actor string) (*Annotation, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	err := s.repo.SetHighlight(ctx, ref, nil, actor)
	return s.after(ctx, ref, "highlight", actor, err)
}

// SetComment writes and reopens a comment. Blank text removes it.
func (s *Service) SetComment(ctx context.Context, ref Ref, text, actor string) (*Annotation, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	var comment *string
	if t := strings.TrimSpace(text); t != "" {
		comment = &t
	}
	err := s.repo.SetComment(ctx, ref, comment, actor)
	return s.after(ctx, ref, "comment", actor, err)
}

func (s *Service) ResolveComment(ctx context.Context, ref Ref, resolved bool, actor string) (*Annotation, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	err := s.repo.SetResolved(ctx, ref, resolved)
	return s.after(ctx, ref, "resolve", actor, err)
}

func (s *Service) Delete(ctx context.Context, ref Ref, actor string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	_, err := s.after(ctx, ref, "delete", actor, s.repo.Delete(ctx, ref))
	return err
}

// ApplyEffects writes the highlights produced by derivations.
func (s *Service) ApplyEffects(ctx context.Context, clinicID string, kind sheet.SheetKind, actor string, effects []sheet.AnnotationEffect) error {
	var errs []error
	for _, e := range effects {
		ref := Ref{ClinicID: clinicID, Kind: kind, RowID: e.RowID, Field: e.Field}
		if err := ref.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		err := s.repo.SetHighlight(ctx, ref, e.Highlight, actor)
		metrics.ObserveAnnotationWrite("derived_highlight", err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(effects) > 0 {
		s.publish(ctx, clinicID, kind, effects)
	}
	return errors.Join(errs...)
}

// Rekey moves annotations from local row ids to the ids the store assigned.
func (s *Service) Rekey(ctx context.Context, clinicID string, kind sheet.SheetKind, ids map[sheet.RowID]sheet.RowID) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.repo.Rekey(ctx, clinicID, kind, ids)
	metrics.ObserveAnnotationWrite("rekey", err)
	if err != nil {
		return err
	}
	s.logger.Debug().Str("clinic_id", clinicID).Int("rows", len(ids)).Msg("annotations rekeyed")
	return nil
}

// after records a write and returns the refetched annotation. A cell left
// with nothing on it reads back as nil.
func (s *Service) after(ctx context.Context, ref Ref, op, actor string, err error) (*Annotation, error) {
	metrics.ObserveAnnotationWrite(op, err)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error().Err(err).Str("clinic_id", ref.ClinicID).Str("row_id", string(ref.RowID)).
				Str("field", string(ref.Field)).Str("op", op).Msg("annotation write failed")
		}
		return nil, err
	}
	s.logger.Info().Str("clinic_id", ref.ClinicID).Str("row_id", string(ref.RowID)).
		Str("field", string(ref.Field)).Str("op", op).Str("actor", actor).Msg("annotation written")

	a, err := s.repo.Get(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		a, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ref.ClinicID, ref.Kind, []Ref{ref})
	return a, nil
}

func (s *Service) publish(ctx context.Context, clinicID string, kind sheet.SheetKind, data any) {
	if s.events == nil {
		return
	}
	ev, err := websocket.NewEvent(Topic(clinicID, kind), websocket.EventAnnotations, 0, data)
	if err == nil {
		err = s.events.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish annotation change")
	}
}
