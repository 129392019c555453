package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FieldScan/internal/domain/models"
	"FieldScan/internal/usecase"
)

type recordingStarter struct {
	err     error
	mode    models.ScanMode
	tickers []string
	calls   int
}

func (r *recordingStarter) Start(_ context.Context, mode models.ScanMode, tickers []string) error {
	r.calls++
	r.mode, r.tickers = mode, tickers
	return r.err
}

func TestScanRequestHandler(t *testing.T) {
	st := &recordingStarter{}
	h := NewScanRequestHandler("fieldscan.scan_requests", st, nil)
	assert.Equal(t, "fieldscan.scan_requests", h.Topic())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"mode":"live","tickers":["nvda", " "]}`)))
	assert.Equal(t, models.ModeLive, st.mode)
	assert.Equal(t, []string{"NVDA"}, st.tickers)

	require.NoError(t, h.Handle(context.Background(), nil))
	assert.Equal(t, models.ModeBacktest, st.mode)
	assert.Empty(t, st.tickers)
}

func TestScanRequestHandler_DropsInvalid(t *testing.T) {
	st := &recordingStarter{}
	h := NewScanRequestHandler("t", st, nil)

	assert.NoError(t, h.Handle(context.Background(), []byte(`{not json`)))
	assert.NoError(t, h.Handle(context.Background(), []byte(`{"mode":"paper"}`)))
	assert.Zero(t, st.calls)
}

func TestScanRequestHandler_BusyIsRetryable(t *testing.T) {
	st := &recordingStarter{err: usecase.ErrScanRunning}
	h := NewScanRequestHandler("t", st, nil)

	err := h.Handle(context.Background(), []byte(`{"mode":"backtest"}`))
	assert.True(t, errors.Is(err, usecase.ErrScanRunning))
}
