package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"github.com/sirupsen/logrus"
)

// LedgerMonitor re-verifies the batch ledger on a fixed interval and logs
// any drift it finds. It never mutates data; reconciliation stays a manual
// decision.
type LedgerMonitor struct {
	Logger   *logrus.Logger
	Interval time.Duration
}

func NewLedgerMonitor(logger *logrus.Logger, interval time.Duration) *LedgerMonitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &LedgerMonitor{
		Logger:   logger,
		Interval: interval,
	}
}

func (m *LedgerMonitor) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		m.checkOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.Interval):
		}
	}
}

func (m *LedgerMonitor) checkOnce(ctx context.Context) {
	if config.GetDB() == nil {
		return
	}
	if _, err := VerifyBatchLedger(ctx, m.Logger, 0); err != nil {
		m.Logger.WithFields(logrus.Fields{
			"field": "LedgerMonitor",
		}).Error("ledger verification failed: " + err.Error())
	}
}
