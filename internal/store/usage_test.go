package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddUsageUpsertsAtomically(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &Store{db: db}
	period := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO vps_usage_periods").
		WithArgs("vps-1", time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), int64(11534336), int64(0), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.AddUsage(context.Background(), "vps-1", period, UsageDelta{BandwidthBytes: 11534336})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsagePeriodReturnsZeroRowWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &Store{db: db}
	period := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT bandwidth_bytes").
		WithArgs("vps-1", time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnError(sql.ErrNoRows)

	row, err := s.GetUsagePeriod(context.Background(), "vps-1", period)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), row.BandwidthBytes)
}

func TestPeriodStartTruncatesToFirstOfMonth(t *testing.T) {
	got := PeriodStart(time.Date(2026, 7, 30, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), got)
}
