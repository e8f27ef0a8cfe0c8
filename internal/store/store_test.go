// internal/store/store_test.go
package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateRuns)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestNew(t *testing.T) {
	t.Run("ping failure is propagated", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("creates the ledger table", func(t *testing.T) {
		_, mockPool := newMockStore(t)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("schema failure is reported", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateRuns)).WillReturnError(errors.New("permission denied"))
		_, err = New(context.Background(), mockPool, zap.NewNop())
		assert.ErrorContains(t, err, "test_runs")
	})
}

func TestRecordRun(t *testing.T) {
	s, mockPool := newMockStore(t)
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("JST", 9*3600))
	finished := started.Add(90 * time.Second)

	mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
		WithArgs("run-1", "scenario", []string{"3", "1"}, 1, 2, 1, started.UTC(), finished.UTC()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordRun(context.Background(), schemas.RunRecord{
		RunID:      "run-1",
		Mode:       schemas.RunModeScenario,
		TestIDs:    []string{"3", "1"},
		ExitCode:   1,
		TestCount:  2,
		Failures:   1,
		StartedAt:  started,
		FinishedAt: finished,
	})
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRecordRun_Error(t *testing.T) {
	s, mockPool := newMockStore(t)
	mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
		WithArgs("run-2", "all", []string{}, 0, 0, 0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err := s.RecordRun(context.Background(), schemas.RunRecord{RunID: "run-2", Mode: schemas.RunModeAll})
	assert.ErrorContains(t, err, "run-2")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRecentRuns(t *testing.T) {
	s, mockPool := newMockStore(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"run_id", "mode", "test_ids", "exit_code", "test_count", "failures", "started_at", "finished_at"}).
		AddRow("run-b", "from", []string{"2", "10"}, 0, 2, 0, now, now.Add(time.Minute)).
		AddRow("run-a", "explicit", []string{"1"}, 1, 1, 1, now.Add(-time.Hour), now.Add(-59*time.Minute))
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlRecentRuns)).WithArgs(10).WillReturnRows(rows)

	runs, err := s.RecentRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].RunID)
	assert.Equal(t, schemas.RunModeFrom, runs[0].Mode)
	assert.Equal(t, []string{"2", "10"}, runs[0].TestIDs)
	assert.Equal(t, 1, runs[1].Failures)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRecentRuns_QueryError(t *testing.T) {
	s, mockPool := newMockStore(t)
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlRecentRuns)).WithArgs(5).WillReturnError(errors.New("boom"))

	_, err := s.RecentRuns(context.Background(), 5)
	assert.ErrorContains(t, err, "failed to query runs")
}
