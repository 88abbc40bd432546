package patient

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinicops/internal/domain/sheet"
	"github.com/clinicops/clinicops/internal/platform/metrics"
)

const DefaultCacheTTL = 5 * time.Minute

// Option is one entry of the patient picker.
type Option struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// snapshot is the cached view of one clinic's patients.
type snapshot struct {
	patients []*Patient
	labels   []string
	index    sheet.PatientIndex
}

// Directory serves a clinic's patients from a TTL cache in front of the
// repository. It is the sheet engine's PatientSource.
type Directory struct {
	repo   Repository
	cache  *cache.Cache
	logger zerolog.Logger
}

func NewDirectory(repo Repository, ttl time.Duration, logger zerolog.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Directory{
		repo:   repo,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger.With().Str("component", "patient_directory").Logger(),
	}
}

func (d *Directory) load(ctx context.Context, clinicID string) (*snapshot, error) {
	if v, ok := d.cache.Get(clinicID); ok {
		metrics.ObserveCache("patients", true)
		return v.(*snapshot), nil
	}
	metrics.ObserveCache("patients", false)

	all, err := d.repo.All(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	snap := &snapshot{
		patients: all,
		labels:   make([]string, len(all)),
	}
	refs := make([]sheet.PatientRef, len(all))
	for i, p := range all {
		snap.labels[i] = p.Label()
		refs[i] = p.ToRef()
	}
	snap.index = sheet.NewPatientIndex(refs)
	d.cache.SetDefault(clinicID, snap)
	d.logger.Debug().Str("clinic_id", clinicID).Int("patients", len(all)).Msg("patient directory loaded")
	return snap, nil
}

func (d *Directory) PatientIndex(ctx context.Context, clinicID string) (sheet.PatientIndex, error) {
	snap, err := d.load(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	return snap.index, nil
}

// Options lists every picker entry of a clinic in code order.
func (d *Directory) Options(ctx context.Context, clinicID string) ([]Option, error) {
	snap, err := d.load(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	out := make([]Option, len(snap.patients))
	for i, p := range snap.patients {
		out[i] = Option{Code: p.Code, Label: snap.labels[i]}
	}
	return out, nil
}

// Search ranks the picker labels against q, best match first. An empty query
// returns the first limit options.
func (d *Directory) Search(ctx context.Context, clinicID, q string, limit int) ([]Option, error) {
	snap, err := d.load(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if q == "" {
		n := len(snap.patients)
		if limit > 0 && limit < n {
			n = limit
		}
		out := make([]Option, n)
		for i := 0; i < n; i++ {
			out[i] = Option{Code: snap.patients[i].Code, Label: snap.labels[i]}
		}
		return out, nil
	}

	ranks := fuzzy.RankFindFold(q, snap.labels)
	sort.Stable(ranks)
	if limit > 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	out := make([]Option, len(ranks))
	for i, r := range ranks {
		out[i] = Option{Code: snap.patients[r.OriginalIndex].Code, Label: r.Target}
	}
	return out, nil
}

func (d *Directory) List(ctx context.Context, clinicID string, limit, offset int) ([]*Patient, int, error) {
	return d.repo.ListByClinic(ctx, clinicID, limit, offset)
}

func (d *Directory) Get(ctx context.Context, clinicID, code string) (*Patient, error) {
	return d.repo.GetByCode(ctx, clinicID, code)
}

// Upsert validates and stores p, invalidating the clinic's cached view.
func (d *Directory) Upsert(ctx context.Context, p *Patient) error {
	p.normalize()
	if p.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalid)
	}
	if !validCode(p.Code) {
		return fmt.Errorf("%w: code %q may not contain \" - \"", ErrInvalid, p.Code)
	}
	if err := d.repo.Upsert(ctx, p); err != nil {
		return err
	}
	d.cache.Delete(p.ClinicID)
	d.logger.Info().Str("clinic_id", p.ClinicID).Str("code", p.Code).Msg("patient saved")
	return nil
}

// Invalidate drops the cached view of a clinic.
func (d *Directory) Invalidate(clinicID string) {
	d.cache.Delete(clinicID)
}

// A code containing the label separator could not be read back from a label.
func validCode(code string) bool {
	return sheet.ExtractPatientCode(code) == code
}
