package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"Healthbite/internal/utility"
	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/errgroup"
)

const cpuSampleWindow = 200 * time.Millisecond

// healthHandler reports process uptime, live sessions and host load. Host
// metrics are best effort; a failing probe leaves its section out.
func (s *Server) healthHandler(c echo.Context) error {
	logger := utility.LoggerFromContext(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	var (
		vm         *mem.VirtualMemoryStat
		cpuPercent []float64
		hInfo      *host.InfoStat
	)

	// Gather host stats concurrently
	g, grpCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := mem.VirtualMemoryWithContext(grpCtx)
		if err != nil {
			logger.Warn().Err(err).Msg("healthHandler: memory probe failed")
			return nil
		}
		vm = v
		return nil
	})
	g.Go(func() error {
		p, err := cpu.PercentWithContext(grpCtx, cpuSampleWindow, false)
		if err != nil {
			logger.Warn().Err(err).Msg("healthHandler: cpu probe failed")
			return nil
		}
		cpuPercent = p
		return nil
	})
	g.Go(func() error {
		h, err := host.InfoWithContext(grpCtx)
		if err != nil {
			logger.Warn().Err(err).Msg("healthHandler: host probe failed")
			return nil
		}
		hInfo = h
		return nil
	})
	_ = g.Wait()

	resp := map[string]interface{}{
		"status": "online",
		"runtime": map[string]interface{}{
			"uptime":     time.Since(s.startTime).Round(time.Second).String(),
			"start_time": s.startTime.Format(time.RFC3339),
			"goroutines": runtime.NumGoroutine(),
		},
		"sessions": map[string]interface{}{
			"active":    s.store.Len(),
			"connected": s.hub.Len(),
		},
	}
	if hInfo != nil {
		resp["host"] = map[string]interface{}{
			"os":       hInfo.OS,
			"platform": hInfo.Platform,
			"arch":     hInfo.KernelArch,
		}
	}
	if len(cpuPercent) > 0 {
		resp["cpu"] = map[string]interface{}{
			"usage_percent": fmt.Sprintf("%.2f%%", cpuPercent[0]),
			"cores":         runtime.NumCPU(),
		}
	}
	if vm != nil {
		resp["memory"] = map[string]interface{}{
			"total_gb":     fmt.Sprintf("%.2f GB", float64(vm.Total)/1024/1024/1024),
			"used_gb":      fmt.Sprintf("%.2f GB", float64(vm.Used)/1024/1024/1024),
			"used_percent": fmt.Sprintf("%.2f%%", vm.UsedPercent),
		}
	}

	return c.JSON(http.StatusOK, resp)
}
