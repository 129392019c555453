package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakePool struct {
	tx       *fakeTx
	beginErr error
	opts     pgx.TxOptions
}

func (p *fakePool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (p *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (p *fakePool) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (p *fakePool) Ping(context.Context) error                              { return nil }
func (p *fakePool) Close()                                                  {}

func (p *fakePool) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	p.opts = opts
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return p.tx, nil
}

func TestRunMaster_Commits(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	m := NewPgTxManager(pool)

	err := m.RunMaster(context.Background(), func(context.Context, Transaction) error { return nil })
	require.NoError(t, err)
	assert.True(t, pool.tx.committed)
	assert.False(t, pool.tx.rolledBack)
	assert.Equal(t, pgx.ReadCommitted, pool.opts.IsoLevel)
}

func TestRunMaster_RollsBackOnError(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	m := NewPgTxManager(pool)
	boom := errors.New("boom")

	err := m.RunMaster(context.Background(), func(context.Context, Transaction) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, pool.tx.rolledBack)
	assert.False(t, pool.tx.committed)
}

func TestRunMaster_CommitErrorSurfaces(t *testing.T) {
	commitErr := errors.New("serialization failure")
	pool := &fakePool{tx: &fakeTx{commitErr: commitErr}}
	m := NewPgTxManager(pool)

	err := m.RunMaster(context.Background(), func(context.Context, Transaction) error { return nil })
	assert.ErrorIs(t, err, commitErr)
}

func TestRunMaster_RollsBackOnPanic(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	m := NewPgTxManager(pool)

	assert.Panics(t, func() {
		_ = m.RunMaster(context.Background(), func(context.Context, Transaction) error { panic("bad") })
	})
	assert.True(t, pool.tx.rolledBack)
}

func TestRunRepeatableRead_Options(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	m := NewPgTxManager(pool)

	require.NoError(t, m.RunRepeatableRead(context.Background(), func(context.Context, Transaction) error { return nil }))
	assert.Equal(t, pgx.RepeatableRead, pool.opts.IsoLevel)
	assert.Equal(t, pgx.ReadOnly, pool.opts.AccessMode)
}

func TestBeginError(t *testing.T) {
	pool := &fakePool{beginErr: errors.New("no conn")}
	m := NewPgTxManager(pool)
	assert.Error(t, m.RunMaster(context.Background(), func(context.Context, Transaction) error { return nil }))
}
