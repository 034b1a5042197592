package repository

// Dialect carries the SQL a backend needs. Both SQLite and ClickHouse take
// positional "?" placeholders, so argument order is shared.
type Dialect struct {
	Name   string
	Schema []string

	// AtomicUpsert means UpsertCorrelation applies the computed_at guard in
	// the statement itself and reports it through RowsAffected. Otherwise
	// the store compares versions under its own lock before inserting.
	AtomicUpsert bool

	InsertObservation  string
	SelectObservations string
	UpsertCorrelation  string
	SelectVersion      string
	SelectCurrent      string
	InsertHistory      string
	SelectHistory      string
	SeriesStats        string
	CountObservations  string
	CountCorrelations  string
}

const correlationColumns = `id, caliber, public_caliber, presentation, slope, intercept, r_squared,
	pearson_r, p_value, residual_stddev, sample_count, ratio_mean, ratio_stddev,
	lookback_days, computed_on, computed_at`

const correlationValues = `(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteDialect stores dates as YYYY-MM-DD text and timestamps as unix nanoseconds.
var SQLiteDialect = Dialect{
	Name:         "sqlite",
	AtomicUpsert: true,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS observations (
			caliber TEXT NOT NULL,
			kind TEXT NOT NULL,
			presentation TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			date TEXT NOT NULL,
			price REAL NOT NULL,
			weight REAL NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (caliber, kind, presentation, source, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_date ON observations (caliber, kind, presentation, date)`,
		`CREATE TABLE IF NOT EXISTS correlations (
			id TEXT NOT NULL,
			caliber TEXT NOT NULL,
			public_caliber TEXT NOT NULL,
			presentation TEXT NOT NULL,
			slope REAL NOT NULL,
			intercept REAL NOT NULL,
			r_squared REAL NOT NULL,
			pearson_r REAL NOT NULL,
			p_value REAL NOT NULL,
			residual_stddev REAL NOT NULL,
			sample_count INTEGER NOT NULL,
			ratio_mean REAL NOT NULL,
			ratio_stddev REAL NOT NULL,
			lookback_days INTEGER NOT NULL,
			computed_on TEXT NOT NULL,
			computed_at INTEGER NOT NULL,
			PRIMARY KEY (caliber, presentation)
		)`,
		`CREATE TABLE IF NOT EXISTS correlation_history (
			id TEXT NOT NULL,
			caliber TEXT NOT NULL,
			public_caliber TEXT NOT NULL,
			presentation TEXT NOT NULL,
			slope REAL NOT NULL,
			intercept REAL NOT NULL,
			r_squared REAL NOT NULL,
			pearson_r REAL NOT NULL,
			p_value REAL NOT NULL,
			residual_stddev REAL NOT NULL,
			sample_count INTEGER NOT NULL,
			ratio_mean REAL NOT NULL,
			ratio_stddev REAL NOT NULL,
			lookback_days INTEGER NOT NULL,
			computed_on TEXT NOT NULL,
			computed_at INTEGER NOT NULL,
			PRIMARY KEY (id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_key ON correlation_history (caliber, presentation, computed_at)`,
	},
	InsertObservation: `INSERT INTO observations (caliber, kind, presentation, source, date, price, weight, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (caliber, kind, presentation, source, date)
		DO UPDATE SET price = excluded.price, weight = excluded.weight, updated_at = excluded.updated_at`,
	SelectObservations: `SELECT date, source, price, weight FROM observations
		WHERE caliber = ? AND kind = ? AND presentation = ? AND date >= ? AND date <= ?
		ORDER BY date`,
	UpsertCorrelation: `INSERT INTO correlations (` + correlationColumns + `) VALUES ` + correlationValues + `
		ON CONFLICT (caliber, presentation) DO UPDATE SET
			id = excluded.id,
			public_caliber = excluded.public_caliber,
			slope = excluded.slope,
			intercept = excluded.intercept,
			r_squared = excluded.r_squared,
			pearson_r = excluded.pearson_r,
			p_value = excluded.p_value,
			residual_stddev = excluded.residual_stddev,
			sample_count = excluded.sample_count,
			ratio_mean = excluded.ratio_mean,
			ratio_stddev = excluded.ratio_stddev,
			lookback_days = excluded.lookback_days,
			computed_on = excluded.computed_on,
			computed_at = excluded.computed_at
		WHERE excluded.computed_at >= correlations.computed_at`,
	SelectVersion: `SELECT computed_at FROM correlations WHERE caliber = ? AND presentation = ?`,
	SelectCurrent: `SELECT ` + correlationColumns + ` FROM correlations WHERE caliber = ? AND presentation = ?`,
	InsertHistory: `INSERT OR IGNORE INTO correlation_history (` + correlationColumns + `) VALUES ` + correlationValues,
	SelectHistory: `SELECT ` + correlationColumns + ` FROM correlation_history
		WHERE caliber = ? AND presentation = ? ORDER BY computed_at DESC LIMIT ?`,
	SeriesStats: `SELECT caliber, kind, presentation, COUNT(DISTINCT date), MIN(date), MAX(date)
		FROM observations GROUP BY caliber, kind, presentation ORDER BY kind, caliber, presentation`,
	CountObservations: `SELECT COUNT(*) FROM observations`,
	CountCorrelations: `SELECT COUNT(*) FROM correlations`,
}

// ClickHouseDialect relies on ReplacingMergeTree versioned by a UInt64
// timestamp and reads with FINAL.
var ClickHouseDialect = Dialect{
	Name:         "clickhouse",
	AtomicUpsert: false,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS observations (
			caliber LowCardinality(String),
			kind LowCardinality(String),
			presentation LowCardinality(String),
			source LowCardinality(String),
			date Date,
			price Float64,
			weight Float64,
			updated_at UInt64
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY (caliber, kind, presentation, date, source)`,
		`CREATE TABLE IF NOT EXISTS correlations (
			id String,
			caliber LowCardinality(String),
			public_caliber LowCardinality(String),
			presentation LowCardinality(String),
			slope Float64,
			intercept Float64,
			r_squared Float64,
			pearson_r Float64,
			p_value Float64,
			residual_stddev Float64,
			sample_count Int64,
			ratio_mean Float64,
			ratio_stddev Float64,
			lookback_days Int64,
			computed_on Date,
			computed_at UInt64
		) ENGINE = ReplacingMergeTree(computed_at)
		ORDER BY (caliber, presentation)`,
		`CREATE TABLE IF NOT EXISTS correlation_history (
			id String,
			caliber LowCardinality(String),
			public_caliber LowCardinality(String),
			presentation LowCardinality(String),
			slope Float64,
			intercept Float64,
			r_squared Float64,
			pearson_r Float64,
			p_value Float64,
			residual_stddev Float64,
			sample_count Int64,
			ratio_mean Float64,
			ratio_stddev Float64,
			lookback_days Int64,
			computed_on Date,
			computed_at UInt64
		) ENGINE = ReplacingMergeTree(computed_at)
		ORDER BY (caliber, presentation, id)`,
	},
	InsertObservation: `INSERT INTO observations (caliber, kind, presentation, source, date, price, weight, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	SelectObservations: `SELECT toString(date), source, price, weight FROM observations FINAL
		WHERE caliber = ? AND kind = ? AND presentation = ? AND date >= ? AND date <= ?
		ORDER BY date`,
	UpsertCorrelation: `INSERT INTO correlations (` + correlationColumns + `) VALUES ` + correlationValues,
	SelectVersion:     `SELECT computed_at FROM correlations FINAL WHERE caliber = ? AND presentation = ?`,
	SelectCurrent: `SELECT id, caliber, public_caliber, presentation, slope, intercept, r_squared,
		pearson_r, p_value, residual_stddev, sample_count, ratio_mean, ratio_stddev,
		lookback_days, toString(computed_on), computed_at
		FROM correlations FINAL WHERE caliber = ? AND presentation = ?`,
	InsertHistory: `INSERT INTO correlation_history (` + correlationColumns + `) VALUES ` + correlationValues,
	SelectHistory: `SELECT id, caliber, public_caliber, presentation, slope, intercept, r_squared,
		pearson_r, p_value, residual_stddev, sample_count, ratio_mean, ratio_stddev,
		lookback_days, toString(computed_on), computed_at
		FROM correlation_history FINAL
		WHERE caliber = ? AND presentation = ? ORDER BY computed_at DESC LIMIT ?`,
	SeriesStats: `SELECT caliber, kind, presentation, uniqExact(date), toString(min(date)), toString(max(date))
		FROM observations FINAL GROUP BY caliber, kind, presentation ORDER BY kind, caliber, presentation`,
	CountObservations: `SELECT count() FROM observations FINAL`,
	CountCorrelations: `SELECT count() FROM correlations FINAL`,
}
