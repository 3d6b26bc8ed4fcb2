// Package sysinfo samples host and process resource usage: load average, memory,
// uptime and process CPU time.
package sysinfo

import (
	"runtime"
	rtmetrics "runtime/metrics"

	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// Probe implements ports.HostProbe and ports.ResourceSampler for the running process.
type Probe struct{}

var (
	_ ports.HostProbe       = Probe{}
	_ ports.ResourceSampler = Probe{}
)

// New returns a Probe.
func New() Probe { return Probe{} }

// Probe samples the host and the Go runtime.
func (Probe) Probe() metrics.HostHealth {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h := metrics.HostHealth{
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		Goroutines: runtime.NumGoroutine(),
		NumCPU:     runtime.NumCPU(),
	}
	fillHost(&h)
	return h
}

// Sample returns process CPU time and live heap bytes. It avoids ReadMemStats, which
// stops the world, because it runs twice per execution.
func (Probe) Sample() ports.ResourceSample {
	return ports.ResourceSample{
		CPUTimeMs: processCPUTime().Milliseconds(),
		HeapBytes: heapBytes(),
	}
}

func heapBytes() int64 {
	s := []rtmetrics.Sample{{Name: heapObjectsMetric}}
	rtmetrics.Read(s)
	if s[0].Value.Kind() != rtmetrics.KindUint64 {
		return 0
	}
	return int64(s[0].Value.Uint64())
}
