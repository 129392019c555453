package stream

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/creasty/defaults"

	"FieldScan/internal/domain/models"
	applogger "FieldScan/pkg/logger"
	xutil "FieldScan/pkg/util"
)

// Starter launches a scan batch. usecase.ScanOrchestrator satisfies it.
type Starter interface {
	Start(ctx context.Context, mode models.ScanMode, tickers []string) error
}

// ScanRequestHandler turns messages on a Kafka topic into scan batches.
// Returning the orchestrator's busy error makes the consumer retry later.
type ScanRequestHandler struct {
	topic   string
	scanner Starter
	l       *applogger.Logger
}

func NewScanRequestHandler(topic string, scanner Starter, l *applogger.Logger) *ScanRequestHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &ScanRequestHandler{topic: topic, scanner: scanner, l: l}
}

func (h *ScanRequestHandler) Topic() string { return h.topic }

func (h *ScanRequestHandler) Handle(ctx context.Context, data []byte) error {
	var req models.StartScanRequest
	if err := defaults.Set(&req); err != nil {
		return err
	}
	if len(data) > 0 {
		if err := sonic.Unmarshal(data, &req); err != nil {
			// a malformed request never succeeds; drop it
			h.l.Warn("invalid scan request", applogger.String("topic", h.topic), applogger.Error(err))
			return nil
		}
	}
	mode := models.ScanMode(req.Mode)
	if !mode.Valid() {
		h.l.Warn("invalid scan request mode", applogger.String("mode", req.Mode))
		return nil
	}

	tickers := make([]string, 0, len(req.Tickers))
	for _, t := range req.Tickers {
		if t = xutil.NormalizeTicker(t); t != "" {
			tickers = append(tickers, t)
		}
	}
	if err := h.scanner.Start(ctx, mode, tickers); err != nil {
		return fmt.Errorf("start %s scan: %w", mode, err)
	}
	h.l.Info("scan requested from stream",
		applogger.String("mode", req.Mode),
		applogger.Int("tickers", len(tickers)),
	)
	return nil
}
