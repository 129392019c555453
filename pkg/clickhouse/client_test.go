package clickhouse

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:         "ch",
		Port:         9000,
		Database:     "fieldscan",
		User:         "default",
		Password:     "p@ss",
		DialTimeout:  5 * time.Second,
		MaxExecTime:  time.Minute,
		AsyncInsert:  true,
		WaitForAsync: true,
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", u.Scheme)
	assert.Equal(t, "ch:9000", u.Host)
	assert.Equal(t, "/fieldscan", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)
	assert.Equal(t, "5s", u.Query().Get("dial_timeout"))
	assert.Equal(t, "60", u.Query().Get("max_execution_time"))
	assert.Equal(t, "1", u.Query().Get("wait_for_async_insert"))
	assert.Empty(t, u.Query().Get("read_timeout"))
}

func TestNewClient_RequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}

func TestClientConfigDefaults(t *testing.T) {
	cfg, err := newClientConfig([]ClientOption{
		WithAddr("ch", 0),
		WithDatabase(""),
		WithCredentials("", "secret"),
		WithTimeouts(0, 30*time.Second, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, "ch", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "fieldscan", cfg.Database)
	assert.Equal(t, "default", cfg.User)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
}

func TestInsertBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	c := NewFromDB(db)
	defer c.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO t")
	prep.ExpectExec().WithArgs("a", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("b", 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = c.InsertBatch(context.Background(), "INSERT INTO t (s, n)", [][]any{{"a", 1}, {"b", 2}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch_RollsBackOnRowError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	c := NewFromDB(db)
	defer c.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO t")
	prep.ExpectExec().WithArgs("a").WillReturnError(errors.New("bad row"))
	mock.ExpectRollback()

	err = c.InsertBatch(context.Background(), "INSERT INTO t (s)", [][]any{{"a"}})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	c := NewFromDB(db)
	defer c.Close()

	require.NoError(t, c.InsertBatch(context.Background(), "INSERT", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
