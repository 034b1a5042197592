package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"ShrimpCast/internal/domain/models"
	domrepo "ShrimpCast/internal/domain/repository"
	"ShrimpCast/pkg/util"
)

type obsKey struct {
	source string
	date   time.Time
}

type corrKey struct {
	caliber      string
	presentation models.Presentation
}

// MemoryStore keeps everything in process. It backs tests and the
// "memory" store backend.
type MemoryStore struct {
	mu      sync.RWMutex
	obs     map[models.SeriesKey]map[obsKey]models.Observation
	current map[corrKey]models.CorrelationModel
	history map[corrKey][]models.CorrelationModel
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		obs:     make(map[models.SeriesKey]map[obsKey]models.Observation),
		current: make(map[corrKey]models.CorrelationModel),
		history: make(map[corrKey][]models.CorrelationModel),
	}
}

func (s *MemoryStore) AppendObservations(_ context.Context, key models.SeriesKey, obs []models.Observation) error {
	if err := validateKey(key); err != nil {
		return err
	}
	for _, o := range obs {
		if err := o.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	byKey, ok := s.obs[key]
	if !ok {
		byKey = make(map[obsKey]models.Observation)
		s.obs[key] = byKey
	}
	for _, o := range obs {
		o.Date = util.Day(o.Date)
		byKey[obsKey{source: o.Source, date: o.Date}] = o
	}
	return nil
}

func (s *MemoryStore) Series(_ context.Context, key models.SeriesKey, from, to time.Time) (models.TimeSeries, error) {
	from, to = util.Day(from), util.Day(to)

	s.mu.RLock()
	var in []models.Observation
	for _, o := range s.obs[key] {
		if o.Date.Before(from) || o.Date.After(to) {
			continue
		}
		in = append(in, o)
	}
	s.mu.RUnlock()

	return collapseByDate(key, in), nil
}

func (s *MemoryStore) Status(_ context.Context) (models.StoreStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := models.StoreStatus{Backend: "memory", Correlations: len(s.current)}
	for key, byKey := range s.obs {
		days := make(map[time.Time]struct{}, len(byKey))
		stat := models.SeriesStat{Key: key}
		for k := range byKey {
			days[k.date] = struct{}{}
			if stat.FirstDate.IsZero() || k.date.Before(stat.FirstDate) {
				stat.FirstDate = k.date
			}
			if k.date.After(stat.LastDate) {
				stat.LastDate = k.date
			}
		}
		stat.Points = len(days)
		st.Observations += len(byKey)
		st.Series = append(st.Series, stat)
	}
	sort.Slice(st.Series, func(i, j int) bool { return st.Series[i].Key.String() < st.Series[j].Key.String() })
	return st, nil
}

func (s *MemoryStore) UpsertCorrelation(_ context.Context, m models.CorrelationModel) (bool, error) {
	if err := validateCorrelation(m); err != nil {
		return false, err
	}
	k := corrKey{caliber: m.Caliber, presentation: m.Presentation}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.current[k]; ok && cur.ComputedAt.After(m.ComputedAt) {
		return false, nil
	}
	s.current[k] = m
	for _, h := range s.history[k] {
		if h.ID == m.ID {
			return true, nil
		}
	}
	s.history[k] = append(s.history[k], m)
	return true, nil
}

func (s *MemoryStore) CurrentCorrelation(_ context.Context, caliber string, p models.Presentation) (*models.CorrelationModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.current[corrKey{caliber: caliber, presentation: p}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// CorrelationHistory returns the newest fits first.
func (s *MemoryStore) CorrelationHistory(_ context.Context, caliber string, p models.Presentation, limit int) ([]models.CorrelationModel, error) {
	s.mu.RLock()
	h := append([]models.CorrelationModel(nil), s.history[corrKey{caliber: caliber, presentation: p}]...)
	s.mu.RUnlock()

	sort.SliceStable(h, func(i, j int) bool { return h[i].ComputedAt.After(h[j].ComputedAt) })
	if limit > 0 && len(h) > limit {
		h = h[:limit]
	}
	return h, nil
}

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

var _ domrepo.Store = (*MemoryStore)(nil)
