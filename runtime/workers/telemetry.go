package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// TelemetryWorker periodically logs process health (CPU, RSS, goroutines).
// Purely observational; losing a sample is fine.
type TelemetryWorker struct {
	log            *slog.Logger
	metricInterval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, metricInterval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{log: log, metricInterval: metricInterval}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cpu, err := p.CPUPercent()
			if err != nil {
				w.log.Debug("CPU sample failed", "error", err)
				continue
			}
			mem, err := p.MemoryInfo()
			if err != nil {
				w.log.Debug("Memory sample failed", "error", err)
				continue
			}
			w.log.Info("Process telemetry",
				"cpu_percent", cpu,
				"rss_mb", mem.RSS/1024/1024,
				"goroutines", runtime.NumGoroutine(),
			)
		}
	}
}
