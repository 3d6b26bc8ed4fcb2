//go:build !linux

package sysinfo

import "github.com/jbctechsolutions/agentmon/internal/domain/metrics"

// Host-wide figures are only read on Linux; elsewhere they stay zero.
func fillHost(*metrics.HostHealth) {}
