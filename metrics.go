// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mps

import "github.com/prometheus/client_golang/prometheus"

// Metrics optionally instruments a Writer/Reader/Layer3 trio with
// Prometheus counters. The zero value is a valid no-op: every method is
// safe to call on an unregistered Metrics and simply does nothing.
type Metrics struct {
	reclaimTotal      *prometheus.CounterVec
	retryTotal        *prometheus.CounterVec
	dispatchBytes     prometheus.Counter
}

// NewMetrics registers MPS counters on reg and returns a Metrics bound
// to them. Passing a nil registry is valid and yields a no-op Metrics,
// matching WithMetrics(nil) being equivalent to not calling it at all.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		reclaimTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mps_writer_reclaim_total",
			Help: "Writer.Reclaim calls, labeled by outcome.",
		}, []string{"outcome"}),
		retryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mps_layer3_retry_total",
			Help: "Layer3 operations that returned ErrRetry, labeled by direction.",
		}, []string{"direction"}),
		dispatchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mps_layer3_dispatch_bytes_total",
			Help: "Cumulative committed bytes across all Layer3.Dispatch calls.",
		}),
	}
	reg.MustRegister(m.reclaimTotal, m.retryTotal, m.dispatchBytes)
	return m
}

func (m *Metrics) observeReclaim(outcome string) {
	if m == nil || m.reclaimTotal == nil {
		return
	}
	m.reclaimTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeRetry(direction string) {
	if m == nil || m.retryTotal == nil {
		return
	}
	m.retryTotal.WithLabelValues(direction).Inc()
}

func (m *Metrics) observeDispatchBytes(n int64) {
	if m == nil || m.dispatchBytes == nil || n <= 0 {
		return
	}
	m.dispatchBytes.Add(float64(n))
}
