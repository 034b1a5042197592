package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"ShrimpCast/internal/domain/models"
	domrepo "ShrimpCast/internal/domain/repository"
	pkgch "ShrimpCast/pkg/clickhouse"
	"ShrimpCast/pkg/logger"
	"ShrimpCast/pkg/sqlite"
	"ShrimpCast/pkg/util"
)

// SQLStore implements Store over database/sql for any Dialect.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	l       *logger.Logger
	closer  func() error
	casMu   sync.Mutex
	now     func() time.Time
}

// NewSQLiteStore creates a store on an opened SQLite client.
func NewSQLiteStore(c *sqlite.Client, l *logger.Logger) *SQLStore {
	return newSQLStore(c.DB(), SQLiteDialect, c.Close, l)
}

// NewClickHouseStore creates a store on an opened ClickHouse client.
func NewClickHouseStore(c *pkgch.Client, l *logger.Logger) *SQLStore {
	return newSQLStore(c.DB(), ClickHouseDialect, c.Close, l)
}

func newSQLStore(db *sql.DB, d Dialect, closer func() error, l *logger.Logger) *SQLStore {
	if l == nil {
		l = logger.Nop()
	}
	return &SQLStore{db: db, dialect: d, l: l.Named("store"), closer: closer, now: time.Now}
}

// Migrate creates tables and indexes when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.l.Error("schema statement failed", logger.String("backend", s.dialect.Name), logger.Error(err))
			return fmt.Errorf("migrate %s: %w", s.dialect.Name, err)
		}
	}
	return nil
}

func (s *SQLStore) AppendObservations(ctx context.Context, key models.SeriesKey, obs []models.Observation) error {
	if err := validateKey(key); err != nil {
		return err
	}
	for _, o := range obs {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	if len(obs) == 0 {
		return nil
	}

	version := uint64(s.now().UnixNano())
	exec := func(ctx context.Context, e execer) error {
		for _, o := range obs {
			_, err := e.ExecContext(ctx, s.dialect.InsertObservation,
				key.Caliber, string(key.Kind), string(key.Presentation),
				o.Source, util.FormatDate(o.Date), o.Price, o.Weight, version)
			if err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if s.dialect.AtomicUpsert {
		err = s.inTx(ctx, func(tx *sql.Tx) error { return exec(ctx, tx) })
	} else {
		err = exec(ctx, s.db)
	}
	if err != nil {
		s.l.Error("append observations failed",
			logger.String("series", key.String()),
			logger.Int("rows", len(obs)),
			logger.Error(err))
		return fmt.Errorf("append observations: %w", err)
	}
	return nil
}

func (s *SQLStore) Series(ctx context.Context, key models.SeriesKey, from, to time.Time) (models.TimeSeries, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, s.dialect.SelectObservations,
		key.Caliber, string(key.Kind), string(key.Presentation),
		util.FormatDate(from), util.FormatDate(to))
	if err != nil {
		s.l.Error("series query error", logger.String("series", key.String()), logger.Error(err))
		return models.TimeSeries{}, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	var obs []models.Observation
	for rows.Next() {
		var (
			o    models.Observation
			date string
		)
		if err := rows.Scan(&date, &o.Source, &o.Price, &o.Weight); err != nil {
			s.l.Error("series scan error", logger.String("series", key.String()), logger.Error(err))
			return models.TimeSeries{}, fmt.Errorf("scan observation: %w", err)
		}
		d, ok := util.ParseDate(date)
		if !ok {
			return models.TimeSeries{}, fmt.Errorf("scan observation: bad date %q", date)
		}
		o.Date = d
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return models.TimeSeries{}, fmt.Errorf("rows: %w", err)
	}

	ts := collapseByDate(key, obs)
	s.l.Debug("series loaded",
		logger.String("series", key.String()),
		logger.Int("rows", len(obs)),
		logger.Int("points", ts.Len()),
		logger.Duration("duration_ms", time.Since(start)))
	return ts, nil
}

func (s *SQLStore) Status(ctx context.Context) (models.StoreStatus, error) {
	st := models.StoreStatus{Backend: s.dialect.Name}
	if err := s.db.QueryRowContext(ctx, s.dialect.CountObservations).Scan(&st.Observations); err != nil {
		return st, fmt.Errorf("count observations: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, s.dialect.CountCorrelations).Scan(&st.Correlations); err != nil {
		return st, fmt.Errorf("count correlations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.SeriesStats)
	if err != nil {
		return st, fmt.Errorf("series stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			stat                models.SeriesStat
			kind, pres          string
			firstDate, lastDate string
		)
		if err := rows.Scan(&stat.Key.Caliber, &kind, &pres, &stat.Points, &firstDate, &lastDate); err != nil {
			return st, fmt.Errorf("scan series stat: %w", err)
		}
		stat.Key.Kind = models.SeriesKind(kind)
		stat.Key.Presentation = models.Presentation(pres)
		stat.FirstDate, _ = util.ParseDate(firstDate)
		stat.LastDate, _ = util.ParseDate(lastDate)
		st.Series = append(st.Series, stat)
	}
	return st, rows.Err()
}

// UpsertCorrelation applies m unless the stored model was computed later.
// Accepted models are also appended to the history.
func (s *SQLStore) UpsertCorrelation(ctx context.Context, m models.CorrelationModel) (bool, error) {
	if err := validateCorrelation(m); err != nil {
		return false, err
	}
	args := correlationArgs(m)

	var applied bool
	var err error
	if s.dialect.AtomicUpsert {
		err = s.inTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, s.dialect.UpsertCorrelation, args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if applied = n > 0; !applied {
				return nil
			}
			_, err = tx.ExecContext(ctx, s.dialect.InsertHistory, args...)
			return err
		})
	} else {
		applied, err = s.versionedInsert(ctx, m, args)
	}
	if err != nil {
		s.l.Error("upsert correlation failed",
			logger.String("caliber", m.Caliber),
			logger.String("presentation", string(m.Presentation)),
			logger.Error(err))
		return false, fmt.Errorf("upsert correlation: %w", err)
	}
	if !applied {
		s.l.Info("stale correlation rejected",
			logger.String("caliber", m.Caliber),
			logger.String("presentation", string(m.Presentation)),
			logger.Time("computed_at", m.ComputedAt))
	}
	return applied, nil
}

// versionedInsert serializes writers in this process and leaves duplicate
// versions to ReplacingMergeTree.
func (s *SQLStore) versionedInsert(ctx context.Context, m models.CorrelationModel, args []any) (bool, error) {
	s.casMu.Lock()
	defer s.casMu.Unlock()

	var stored uint64
	err := s.db.QueryRowContext(ctx, s.dialect.SelectVersion, m.Caliber, string(m.Presentation)).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, err
	case stored > uint64(m.ComputedAt.UnixNano()):
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.UpsertCorrelation, args...); err != nil {
		return false, err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.InsertHistory, args...); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) CurrentCorrelation(ctx context.Context, caliber string, p models.Presentation) (*models.CorrelationModel, error) {
	m, err := scanCorrelation(s.db.QueryRowContext(ctx, s.dialect.SelectCurrent, caliber, string(p)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current correlation: %w", err)
	}
	return &m, nil
}

func (s *SQLStore) CorrelationHistory(ctx context.Context, caliber string, p models.Presentation, limit int) ([]models.CorrelationModel, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.SelectHistory, caliber, string(p), limit)
	if err != nil {
		return nil, fmt.Errorf("correlation history: %w", err)
	}
	defer rows.Close()

	var out []models.CorrelationModel
	for rows.Next() {
		m, err := scanCorrelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan correlation: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func correlationArgs(m models.CorrelationModel) []any {
	return []any{
		m.ID, m.Caliber, m.PublicCaliber, string(m.Presentation),
		m.Slope, m.Intercept, m.RSquared, m.PearsonR, m.PValue, m.ResidualStdDev,
		m.SampleCount, m.RatioMean, m.RatioStdDev, m.LookbackDays,
		util.FormatDate(m.ComputedOn), uint64(m.ComputedAt.UnixNano()),
	}
}

func scanCorrelation(row scanner) (models.CorrelationModel, error) {
	var (
		m          models.CorrelationModel
		pres       string
		computedOn string
		computedAt uint64
	)
	err := row.Scan(&m.ID, &m.Caliber, &m.PublicCaliber, &pres,
		&m.Slope, &m.Intercept, &m.RSquared, &m.PearsonR, &m.PValue, &m.ResidualStdDev,
		&m.SampleCount, &m.RatioMean, &m.RatioStdDev, &m.LookbackDays,
		&computedOn, &computedAt)
	if err != nil {
		return m, err
	}
	m.Presentation = models.Presentation(pres)
	m.ComputedOn, _ = util.ParseDate(computedOn)
	m.ComputedAt = time.Unix(0, int64(computedAt)).UTC()
	return m, nil
}

var _ domrepo.Store = (*SQLStore)(nil)
