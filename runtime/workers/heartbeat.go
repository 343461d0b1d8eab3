package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/dsgolman/supportai-bot-sub000/contract"
	"github.com/dsgolman/supportai-bot-sub000/domain"
)

// HeartbeatWorker probes one facilitator connection at a fixed interval.
// A failed probe means the connection is gone: the worker reports it once
// through onFailure and stops. The connection manager owns the consequences
// (teardown, reconnect scheduling).
type HeartbeatWorker struct {
	log       *slog.Logger
	groupID   domain.GroupID
	conn      contract.FacilitatorConn
	interval  time.Duration
	timeout   time.Duration
	onFailure func(groupID domain.GroupID, conn contract.FacilitatorConn, err error)
}

func NewHeartbeatWorker(
	log *slog.Logger,
	groupID domain.GroupID,
	conn contract.FacilitatorConn,
	interval time.Duration,
	timeout time.Duration,
	onFailure func(groupID domain.GroupID, conn contract.FacilitatorConn, err error),
) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:       log,
		groupID:   groupID,
		conn:      conn,
		interval:  interval,
		timeout:   timeout,
		onFailure: onFailure,
	}
}

// Run executes the probe loop. It terminates cleanly when the context is
// canceled (session closed) or when the connection stops answering.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping heartbeat", "group", w.groupID)
			return nil
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, w.timeout)
			err := w.conn.Ping(probeCtx)
			cancel()
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("Facilitator liveness probe failed", "group", w.groupID, "error", err)
			if w.onFailure != nil {
				w.onFailure(w.groupID, w.conn, err)
			}
			return nil
		}
	}
}
