package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinicops/internal/domain/sheet"
	"github.com/clinicops/clinicops/internal/platform/metrics"
)

const DefaultCacheTTL = 5 * time.Minute

// Service serves each clinic's lookup tables from a TTL cache. A clinic with no
// rows of its own gets the defaults. It is the sheet engine's CatalogSource.
type Service struct {
	repo     Repository
	defaults Tables
	cache    *cache.Cache
	logger   zerolog.Logger
}

type cached struct {
	tables Tables
	colors sheet.ColorTable
	codes  sheet.CodeTable
}

func NewService(repo Repository, defaults Tables, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		repo:     repo,
		defaults: defaults,
		cache:    cache.New(ttl, 2*ttl),
		logger:   logger.With().Str("component", "catalog").Logger(),
	}
}

func (s *Service) load(ctx context.Context, clinicID string) (*cached, error) {
	if v, ok := s.cache.Get(clinicID); ok {
		metrics.ObserveCache("catalog", true)
		return v.(*cached), nil
	}
	metrics.ObserveCache("catalog", false)

	t, err := s.repo.Load(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if t.Empty() {
		t = s.defaults
	}
	c := &cached{tables: t, colors: t.ColorTable(), codes: t.CodeTable()}
	s.cache.SetDefault(clinicID, c)
	return c, nil
}

func (s *Service) Tables(ctx context.Context, clinicID string) (sheet.ColorTable, sheet.CodeTable, error) {
	c, err := s.load(ctx, clinicID)
	if err != nil {
		return nil, nil, err
	}
	return c.colors, c.codes, nil
}

// Get returns the tables in effect for a clinic.
func (s *Service) Get(ctx context.Context, clinicID string) (Tables, error) {
	c, err := s.load(ctx, clinicID)
	if err != nil {
		return Tables{}, err
	}
	return c.tables, nil
}

func (s *Service) PutStatusColor(ctx context.Context, clinicID string, c sheet.StatusColor) error {
	if err := validateStatusColor(&c); err != nil {
		return err
	}
	if err := s.repo.UpsertStatusColor(ctx, clinicID, c); err != nil {
		return err
	}
	s.cache.Delete(clinicID)
	return nil
}

func (s *Service) DeleteStatusColor(ctx context.Context, clinicID string, typ sheet.StatusType, status string) error {
	status = strings.TrimSpace(status)
	if err := s.repo.DeleteStatusColor(ctx, clinicID, typ, status); err != nil {
		return err
	}
	s.cache.Delete(clinicID)
	return nil
}

func (s *Service) PutBillingCode(ctx context.Context, clinicID string, c BillingCode) error {
	if err := validateBillingCode(&c); err != nil {
		return err
	}
	if err := s.repo.UpsertBillingCode(ctx, clinicID, c); err != nil {
		return err
	}
	s.cache.Delete(clinicID)
	return nil
}

func (s *Service) DeleteBillingCode(ctx context.Context, clinicID, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := s.repo.DeleteBillingCode(ctx, clinicID, code); err != nil {
		return err
	}
	s.cache.Delete(clinicID)
	return nil
}

// Seed copies the defaults into a clinic's own tables.
func (s *Service) Seed(ctx context.Context, clinicID string) (int, error) {
	n, err := s.repo.Seed(ctx, clinicID, s.defaults)
	if err != nil {
		return 0, err
	}
	s.cache.Delete(clinicID)
	s.logger.Info().Str("clinic_id", clinicID).Int("entries", n).Msg("catalog seeded")
	return n, nil
}
