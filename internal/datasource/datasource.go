// Package datasource provides the concrete read-only data source adapter
// (spec.md §6.1, §4.K): a pooled Postgres reader producing domain.SnapshotRow
// over a cursor-style channel interface. The core never imports this
// package directly from the aligner/simulator/gridsearch — it depends only
// on the Iterator method shape, so a future non-Postgres source can satisfy
// the same contract.
package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/hoopdivergence/internal/apperrors"
	"github.com/sawpanic/hoopdivergence/internal/domain"
)

// Config holds the Postgres connection and retry configuration (spec.md
// §6.5 env var HOOPDIVERGENCE_DB_DSN, read by DefaultConfig).
type Config struct {
	DSN             string        `yaml:"dsn" env:"HOOPDIVERGENCE_DB_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`

	MaxRetries    int           `yaml:"max_retries"`
	BaseBackoff   time.Duration `yaml:"base_backoff"`
	MaxBackoff    time.Duration `yaml:"max_backoff"`
	RequestsPerSecond float64   `yaml:"requests_per_second"`
}

// DefaultConfig mirrors the teacher's connection-pool defaults, scaled down
// for a read-heavy batch workload rather than a hot trading path. The DSN
// is taken from the HOOPDIVERGENCE_DB_DSN environment variable.
func DefaultConfig() Config {
	return Config{
		DSN:               os.Getenv("HOOPDIVERGENCE_DB_DSN"),
		MaxOpenConns:      10,
		MaxIdleConns:      5,
		ConnMaxLifetime:   30 * time.Minute,
		ConnMaxIdleTime:   5 * time.Minute,
		QueryTimeout:      30 * time.Second,
		MaxRetries:        3,
		BaseBackoff:       200 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		RequestsPerSecond: 20,
	}
}

// PostgresSource implements the §6.1 data-source contract over a pooled
// sqlx.DB, with a circuit breaker guarding sustained outages and a token
// bucket pacing retry attempts.
type PostgresSource struct {
	db      *sqlx.DB
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// Open connects to Postgres, configures the pool, and pings once to fail
// fast on a bad DSN (grounded on internal/infrastructure/db/connection.go).
func Open(cfg Config) (*PostgresSource, error) {
	if cfg.DSN == "" {
		return nil, &apperrors.InvalidArguments{Reason: "data source DSN is required"}
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("datasource: opening connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("datasource: ping failed: %w", err)
	}

	return NewFromDB(db, cfg), nil
}

// NewFromDB builds a PostgresSource over an already-open *sqlx.DB, skipping
// the connect/ping step. Production code should use Open; this constructor
// exists so tests can inject a sqlmock-backed *sqlx.DB.
func NewFromDB(db *sqlx.DB, cfg Config) *PostgresSource {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "hoopdivergence-postgres",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.ConsecutiveFailures >= 3
		},
	})

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}

	return &PostgresSource{
		db:      db,
		cfg:     cfg,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(rps), int(math.Max(1, rps))),
	}
}

// Close releases the underlying connection pool.
func (s *PostgresSource) Close() error {
	return s.db.Close()
}

const snapshotQuery = `
	SELECT
		season_label, game_id, sequence_number, snapshot_ts, espn_home_prob,
		score_diff, time_remaining_regulation, home_score, away_score, period,
		score_diff_div_sqrt_time_remaining, espn_home_prob_lag_1, espn_home_prob_delta_1, possession,
		market_home_bid, market_home_ask, market_home_mid, market_home_spread,
		market_away_bid, market_away_ask, market_away_mid, market_away_spread,
		opening_prob_home_fair, opening_overround
	FROM espn_market_snapshots
	WHERE season_label = $1 AND game_id = $2
	ORDER BY sequence_number ASC`

// Iterator streams one game's SnapshotRows in sequence_number order over a
// channel (spec.md §4.K); the error channel carries at most one
// apperrors.DataSourceError, sent after retries are exhausted, and both
// channels are closed when the query completes or fails.
func (s *PostgresSource) Iterator(ctx context.Context, season, gameID string) (<-chan domain.SnapshotRow, <-chan error) {
	rows := make(chan domain.SnapshotRow)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)

		sqlRows, err := s.queryWithRetry(ctx, season, gameID)
		if err != nil {
			errs <- err
			return
		}
		defer sqlRows.Close()

		for sqlRows.Next() {
			row, err := scanSnapshotRow(sqlRows)
			if err != nil {
				errs <- &apperrors.DataSourceError{Op: "scan", Err: err}
				return
			}
			select {
			case rows <- row:
			case <-ctx.Done():
				return
			}
		}
		if err := sqlRows.Err(); err != nil {
			errs <- &apperrors.DataSourceError{Op: "iterate", Err: err}
		}
	}()

	return rows, errs
}

// queryWithRetry runs the snapshot query behind the circuit breaker, with
// bounded exponential backoff paced by the rate limiter between attempts
// (spec.md §7 DataSourceError: "retried with bounded exponential backoff").
func (s *PostgresSource) queryWithRetry(ctx context.Context, season, gameID string) (*sqlx.Rows, error) {
	return s.executeWithRetry(ctx, func(queryCtx context.Context) (*sqlx.Rows, error) {
		return s.db.QueryxContext(queryCtx, snapshotQuery, season, gameID)
	})
}

const gameIDsQuery = `
	SELECT DISTINCT game_id
	FROM espn_market_snapshots
	WHERE season_label = $1
	ORDER BY game_id ASC`

// ListGameIDs returns every distinct game_id recorded for a season, the
// eligible game universe a caller splits and grids over when --season (not
// --game-list) selects the run (spec.md §6.3 "Inputs").
func (s *PostgresSource) ListGameIDs(ctx context.Context, season string) ([]string, error) {
	rows, err := s.executeWithRetry(ctx, func(queryCtx context.Context) (*sqlx.Rows, error) {
		return s.db.QueryxContext(queryCtx, gameIDsQuery, season)
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &apperrors.DataSourceError{Op: "scan", Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperrors.DataSourceError{Op: "iterate", Err: err}
	}
	return ids, nil
}

// executeWithRetry runs query behind the circuit breaker, with bounded
// exponential backoff paced by the rate limiter between attempts.
func (s *PostgresSource) executeWithRetry(ctx context.Context, query func(context.Context) (*sqlx.Rows, error)) (*sqlx.Rows, error) {
	var lastErr error

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.backoffFor(attempt)
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, &apperrors.DataSourceError{Op: "rate-limit-wait", Err: err}
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, &apperrors.DataSourceError{Op: "backoff-wait", Err: ctx.Err()}
			}
		}

		timeout := s.cfg.QueryTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		queryCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := s.breaker.Execute(func() (interface{}, error) {
			return query(queryCtx)
		})
		cancel()

		if err == nil {
			return result.(*sqlx.Rows), nil
		}
		lastErr = err
	}

	return nil, &apperrors.DataSourceError{Op: "query", Err: lastErr}
}

// backoffFor computes a bounded exponential delay with jitter for the given
// (1-indexed) attempt number.
func (s *PostgresSource) backoffFor(attempt int) time.Duration {
	base := s.cfg.BaseBackoff
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	max := s.cfg.MaxBackoff
	if max <= 0 {
		max = 5 * time.Second
	}

	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2 + 1))
	return delay/2 + jitter
}

func scanSnapshotRow(rows *sqlx.Rows) (domain.SnapshotRow, error) {
	var row domain.SnapshotRow
	var espnHomeProb, scoreDivSqrt, espnLag1, espnDelta1 sql.NullFloat64
	var possession string
	var homeBid, homeAsk, homeMid, homeSpread sql.NullFloat64
	var awayBid, awayAsk, awayMid, awaySpread sql.NullFloat64
	var openingProb, openingOverround sql.NullFloat64

	err := rows.Scan(
		&row.SeasonLabel, &row.GameID, &row.SequenceNumber, &row.SnapshotTS, &espnHomeProb,
		&row.ScoreDiff, &row.TimeRemainingRegulation, &row.HomeScore, &row.AwayScore, &row.Period,
		&scoreDivSqrt, &espnLag1, &espnDelta1, &possession,
		&homeBid, &homeAsk, &homeMid, &homeSpread,
		&awayBid, &awayAsk, &awayMid, &awaySpread,
		&openingProb, &openingOverround,
	)
	if err != nil {
		return domain.SnapshotRow{}, err
	}

	row.ESPNHomeProb = nullableOrNaN(espnHomeProb)
	row.ScoreDiffDivSqrtTimeRemaining = nullableOrNaN(scoreDivSqrt)
	row.ESPNHomeProbLag1 = nullableOrNaN(espnLag1)
	row.ESPNHomeProbDelta1 = nullableOrNaN(espnDelta1)
	row.Possession = domain.Possession(possession)

	row.OpeningProbHomeFair = nullableOrNaN(openingProb)
	row.OpeningOverround = nullableOrNaN(openingOverround)

	if homeBid.Valid && homeAsk.Valid {
		row.MarketAvailable = true
		row.MarketHomeBid = homeBid.Float64
		row.MarketHomeAsk = homeAsk.Float64
		row.MarketHomeMid = nullableOrNaN(homeMid)
		row.MarketHomeSpread = nullableOrNaN(homeSpread)
		row.MarketAwayBid = nullableOrNaN(awayBid)
		row.MarketAwayAsk = nullableOrNaN(awayAsk)
		row.MarketAwayMid = nullableOrNaN(awayMid)
		row.MarketAwaySpread = nullableOrNaN(awaySpread)
	}

	return row, nil
}

func nullableOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
