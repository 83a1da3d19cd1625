package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/bulkmail/internal/constants"
	"github.com/RezaEskandarii/bulkmail/internal/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockLockManager struct {
	acquireErr error
	acquired   []int
	released   []int
}

func (m *mockLockManager) Acquire(_ context.Context, lockID int) error {
	if m.acquireErr != nil {
		return m.acquireErr
	}
	m.acquired = append(m.acquired, lockID)
	return nil
}

func (m *mockLockManager) TryAcquire(_ context.Context, lockID int) (bool, error) {
	return true, m.Acquire(context.Background(), lockID)
}

func (m *mockLockManager) Release(_ context.Context, lockID int) error {
	m.released = append(m.released, lockID)
	return nil
}

var _ lock.DistributedLockManager = (*mockLockManager)(nil)

func TestReadSQLScripts(t *testing.T) {
	scripts, err := readSQLScripts()
	require.NoError(t, err)
	require.Len(t, scripts, 3)
	assert.Equal(t, "001_users.sql", scripts[0].name)
	assert.Equal(t, "003_email_logs.sql", scripts[2].name)
	assert.Contains(t, scripts[2].body, "REFERENCES email_templates")
}

func TestInit_RunsScriptsUnderLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS email_templates").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS email_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	lockMgr := &mockLockManager{}
	err = Init(context.Background(), db, lockMgr, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, []int{constants.MigrationLock}, lockMgr.acquired)
	assert.Equal(t, []int{constants.MigrationLock}, lockMgr.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_LockAcquireFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lockMgr := &mockLockManager{acquireErr: errors.New("lock busy")}

	err = Init(context.Background(), db, lockMgr, zap.NewNop())
	assert.Error(t, err)
	assert.Empty(t, lockMgr.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_ScriptFailureReleasesLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("permission denied"))

	lockMgr := &mockLockManager{}
	err = Init(context.Background(), db, lockMgr, zap.NewNop())

	assert.ErrorContains(t, err, "001_users.sql")
	assert.Equal(t, []int{constants.MigrationLock}, lockMgr.released)
}
