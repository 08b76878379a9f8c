package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"
)

// Sensor is the contract any host metric source must satisfy.
type Sensor interface {
	// Read blocks for roughly window so that rate-style counters (CPU) can
	// integrate, then returns one raw reading.
	Read(ctx context.Context, window time.Duration) (Reading, error)
}

// HostSensor reads the local host through gopsutil.
type HostSensor struct {
	DiskPath string // mount point whose usage is reported, e.g. "/"
}

// NewHostSensor returns a sensor reporting disk usage for diskPath.
func NewHostSensor(diskPath string) *HostSensor {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostSensor{DiskPath: diskPath}
}

// Read implements Sensor. The CPU window and the instantaneous reads run
// concurrently so the call takes about window in total.
func (h *HostSensor) Read(ctx context.Context, window time.Duration) (Reading, error) {
	var r Reading
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pcts, err := cpu.PercentWithContext(ctx, window, false)
		if err != nil {
			return fmt.Errorf("cpu percent: %w", err)
		}
		if len(pcts) == 0 {
			return errors.New("cpu percent: empty result")
		}
		r.CPUPercent = pcts[0]
		return nil
	})

	g.Go(func() error {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return fmt.Errorf("virtual memory: %w", err)
		}
		r.MemoryPercent = vm.UsedPercent
		return nil
	})

	g.Go(func() error {
		usage, err := disk.UsageWithContext(ctx, h.DiskPath)
		if err != nil {
			return fmt.Errorf("disk usage %s: %w", h.DiskPath, err)
		}
		if usage.Total > 0 {
			r.DiskPercent = float64(usage.Used) / float64(usage.Total) * 100
		}
		return nil
	})

	g.Go(func() error {
		counters, err := net.IOCountersWithContext(ctx, false)
		if err != nil {
			return fmt.Errorf("net io counters: %w", err)
		}
		for _, c := range counters {
			r.NetworkIOBytes += c.BytesSent + c.BytesRecv
		}
		return nil
	})

	g.Go(func() error {
		pids, err := process.PidsWithContext(ctx)
		if err != nil {
			return fmt.Errorf("pids: %w", err)
		}
		r.ProcessCount = len(pids)
		return nil
	})

	if err := g.Wait(); err != nil {
		return Reading{}, err
	}
	return r, nil
}
