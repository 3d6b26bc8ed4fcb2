//go:build linux

package sysinfo

import (
	"golang.org/x/sys/unix"

	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
)

// Load averages from sysinfo(2) are fixed point with 16 fractional bits.
const loadScale = float64(1 << 16)

func fillHost(h *metrics.HostHealth) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return
	}

	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	for i, l := range info.Loads {
		h.LoadAverage[i] = float64(l) / loadScale
	}
	h.TotalMemory = uint64(info.Totalram) * unit
	h.FreeMemory = uint64(info.Freeram) * unit
	h.HostUptimeMs = int64(info.Uptime) * 1000
}
