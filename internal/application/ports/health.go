package ports

import "github.com/jbctechsolutions/agentmon/internal/domain/metrics"

// HostProbe reports host and process health for system metrics.
type HostProbe interface {
	// Probe samples the host. It must not block for long and never fails; fields that
	// cannot be read on the current platform are left zero.
	Probe() metrics.HostHealth
}

// ResourceSampler reads the resource usage of the current process, used to compute
// per-execution CPU time and memory deltas.
type ResourceSampler interface {
	// Sample returns cumulative process CPU time and current heap bytes in use.
	Sample() ResourceSample
}

// ResourceSample is one reading of process resource usage.
type ResourceSample struct {
	CPUTimeMs int64
	HeapBytes int64
}
