package datasource

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockSource(t *testing.T) (*PostgresSource, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	cfg.BaseBackoff = time.Millisecond
	src := NewFromDB(sqlxDB, cfg)
	return src, mock, func() { mockDB.Close() }
}

var snapshotColumns = []string{
	"season_label", "game_id", "sequence_number", "snapshot_ts", "espn_home_prob",
	"score_diff", "time_remaining_regulation", "home_score", "away_score", "period",
	"score_diff_div_sqrt_time_remaining", "espn_home_prob_lag_1", "espn_home_prob_delta_1", "possession",
	"market_home_bid", "market_home_ask", "market_home_mid", "market_home_spread",
	"market_away_bid", "market_away_ask", "market_away_mid", "market_away_spread",
	"opening_prob_home_fair", "opening_overround",
}

func TestIteratorStreamsRowsInOrder(t *testing.T) {
	src, mock, cleanup := newMockSource(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows(snapshotColumns).
		AddRow("2025-26", "g1", 1, now, 0.6, 3, 600, 50, 47, 1, 0.1, 0.58, 0.02, "home",
			0.60, 0.63, 0.615, 0.03, 0.38, 0.41, 0.395, 0.03, 0.55, 0.02).
		AddRow("2025-26", "g1", 2, now.Add(time.Minute), 0.62, 4, 540, 52, 48, 1, 0.15, 0.6, 0.02, "away",
			nil, nil, nil, nil, nil, nil, nil, nil, 0.55, 0.02)

	mock.ExpectQuery("SELECT").WithArgs("2025-26", "g1").WillReturnRows(rows)

	rowCh, errCh := src.Iterator(context.Background(), "2025-26", "g1")

	var got []int
	for r := range rowCh {
		got = append(got, r.SequenceNumber)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("rows out of order or missing: %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestIteratorMarksMarketUnavailableWhenBidAskNull(t *testing.T) {
	src, mock, cleanup := newMockSource(t)
	defer cleanup()

	rows := sqlmock.NewRows(snapshotColumns).
		AddRow("2025-26", "g1", 1, time.Now(), 0.6, 3, 600, 50, 47, 1, 0.1, 0.58, 0.02, "home",
			nil, nil, nil, nil, nil, nil, nil, nil, nil, nil)
	mock.ExpectQuery("SELECT").WithArgs("2025-26", "g1").WillReturnRows(rows)

	rowCh, errCh := src.Iterator(context.Background(), "2025-26", "g1")
	row := <-rowCh
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.MarketAvailable {
		t.Error("MarketAvailable should be false when bid/ask are NULL")
	}
}

func TestIteratorRetriesTransientFailureThenSucceeds(t *testing.T) {
	src, mock, cleanup := newMockSource(t)
	defer cleanup()

	rows := sqlmock.NewRows(snapshotColumns).
		AddRow("2025-26", "g1", 1, time.Now(), 0.6, 3, 600, 50, 47, 1, 0.1, 0.58, 0.02, "home",
			0.60, 0.63, 0.615, 0.03, 0.38, 0.41, 0.395, 0.03, 0.55, 0.02)

	mock.ExpectQuery("SELECT").WithArgs("2025-26", "g1").WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectQuery("SELECT").WithArgs("2025-26", "g1").WillReturnRows(rows)

	rowCh, errCh := src.Iterator(context.Background(), "2025-26", "g1")
	count := 0
	for range rowCh {
		count++
	}
	if err := <-errCh; err != nil {
		t.Fatalf("expected success after retry, got error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after retry, got %d", count)
	}
}

func TestIteratorSurfacesDataSourceErrorAfterRetriesExhausted(t *testing.T) {
	src, mock, cleanup := newMockSource(t)
	defer cleanup()

	mock.ExpectQuery("SELECT").WithArgs("2025-26", "g1").WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectQuery("SELECT").WithArgs("2025-26", "g1").WillReturnError(sqlmock.ErrCancelled)

	rowCh, errCh := src.Iterator(context.Background(), "2025-26", "g1")
	for range rowCh {
		t.Error("expected no rows on persistent failure")
	}
	err := <-errCh
	if err == nil {
		t.Fatal("expected a DataSourceError after retries are exhausted")
	}
}

func TestListGameIDsReturnsDistinctSortedIDs(t *testing.T) {
	src, mock, cleanup := newMockSource(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"game_id"}).AddRow("g1").AddRow("g2")
	mock.ExpectQuery("SELECT DISTINCT game_id").WithArgs("2025-26").WillReturnRows(rows)

	ids, err := src.ListGameIDs(context.Background(), "2025-26")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "g1" || ids[1] != "g2" {
		t.Fatalf("ids = %v, want [g1 g2]", ids)
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open(Config{})
	if err == nil {
		t.Fatal("expected an error for a missing DSN")
	}
}
