package sysinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbe(t *testing.T) {
	h := New().Probe()

	assert.Equal(t, runtime.NumCPU(), h.NumCPU)
	assert.Positive(t, h.Goroutines)
	assert.Positive(t, h.HeapSys)
	if runtime.GOOS == "linux" {
		assert.Positive(t, h.TotalMemory)
		assert.LessOrEqual(t, h.FreeMemory, h.TotalMemory)
		assert.Positive(t, h.HostUptimeMs)
	}
}

func TestSample_Monotonic(t *testing.T) {
	p := New()
	before := p.Sample()

	// Burn some CPU.
	x := 0
	for i := 0; i < 20_000_000; i++ {
		x += i % 7
	}
	_ = x

	after := p.Sample()
	assert.GreaterOrEqual(t, after.CPUTimeMs, before.CPUTimeMs)
	assert.Positive(t, after.HeapBytes)
}
