package manager

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"wardwatch/internal/models"
)

const telemetryInterval = 5 * time.Second

// Telemetry samples host CPU, memory and disk usage in the background for
// the health endpoint.
type Telemetry struct {
	logger *zap.Logger

	mu       sync.Mutex
	snapshot *models.SystemTelemetry
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewTelemetry(logger *zap.Logger) *Telemetry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telemetry{logger: logger}
}

// Start launches the background sampler. Repeat calls are no-ops.
func (t *Telemetry) Start() {
	t.mu.Lock()
	if t.stop != nil {
		t.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	t.stop = stop
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(telemetryInterval)
		defer ticker.Stop()
		ctx := context.Background()
		t.refresh(ctx)
		for {
			select {
			case <-ticker.C:
				t.refresh(ctx)
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the sampler and waits for it to exit.
func (t *Telemetry) Stop() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	t.wg.Wait()
}

// Snapshot returns the latest sample, or nil before the first refresh.
func (t *Telemetry) Snapshot() *models.SystemTelemetry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snapshot == nil {
		return nil
	}
	copied := *t.snapshot
	return &copied
}

func (t *Telemetry) refresh(ctx context.Context) {
	snap := &models.SystemTelemetry{SampledAt: time.Now().UTC()}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	} else if err != nil {
		t.logger.Debug("cpu sample failed", zap.Error(err))
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemoryPercent = vm.UsedPercent
		snap.MemoryUsed = vm.Used
		snap.MemoryTotal = vm.Total
	} else {
		t.logger.Debug("memory sample failed", zap.Error(err))
	}
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		snap.DiskPercent = du.UsedPercent
		snap.DiskUsed = du.Used
		snap.DiskTotal = du.Total
	} else {
		t.logger.Debug("disk sample failed", zap.Error(err))
	}

	t.mu.Lock()
	t.snapshot = snap
	t.mu.Unlock()
}
