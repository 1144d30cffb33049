/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes badvpn-client's Prometheus registry:
// per-destination liveness/queue-depth gauges, FragmentProto and
// fair-queue counters, and a gopsutil-based process stats collector.
// One registry per process, every collector registered up front,
// served over net/http on the monitoring port.
package metrics

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/process"
	log "github.com/sirupsen/logrus"
)

// Metrics holds every collector badvpn-client registers.
type Metrics struct {
	registry *prometheus.Registry

	DestUp          *prometheus.GaugeVec
	DestQueueDepth  *prometheus.GaugeVec
	DestJitter      *prometheus.GaugeVec
	FramesAssembled prometheus.Counter
	FramesDropped   prometheus.Counter
	KeepalivesSent  *prometheus.CounterVec
	FairQueueTurns  *prometheus.CounterVec

	procRSS        prometheus.Gauge
	procCPUPercent prometheus.Gauge
	procNumFDs     prometheus.Gauge
	procGoroutines prometheus.Gauge

	proc      *process.Process
	startTime time.Time
}

// New creates and registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry(), startTime: time.Now()}

	m.DestUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "badvpn", Name: "dest_up", Help: "1 if this destination is currently live, else 0",
	}, []string{"peer"})
	m.DestQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "badvpn", Name: "dest_queue_depth", Help: "outbound frames currently queued for this destination",
	}, []string{"peer"})
	m.DestJitter = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "badvpn", Name: "dest_keepalive_jitter_ns", Help: "running stddev of inbound keepalive inter-arrival time, nanoseconds",
	}, []string{"peer"})
	m.FramesAssembled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "badvpn", Name: "fragment_frames_assembled_total", Help: "frames successfully reassembled from FragmentProto chunks",
	})
	m.FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "badvpn", Name: "fragment_frames_dropped_total", Help: "reassembly slots discarded due to overlap, overrun or timeout",
	})
	m.KeepalivesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "badvpn", Name: "keepalives_sent_total", Help: "keepalive datagrams sent per destination",
	}, []string{"peer"})
	m.FairQueueTurns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "badvpn", Name: "fair_queue_turns_total", Help: "flows served per destination's fair queue",
	}, []string{"peer"})

	m.procRSS = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "badvpn", Name: "process_rss_bytes", Help: "resident set size"})
	m.procCPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "badvpn", Name: "process_cpu_percent", Help: "CPU utilization since last scrape"})
	m.procNumFDs = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "badvpn", Name: "process_num_fds", Help: "open file descriptor count"})
	m.procGoroutines = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "badvpn", Name: "process_goroutines", Help: "runtime.NumGoroutine()"})

	m.registry.MustRegister(
		m.DestUp, m.DestQueueDepth, m.DestJitter,
		m.FramesAssembled, m.FramesDropped, m.KeepalivesSent, m.FairQueueTurns,
		m.procRSS, m.procCPUPercent, m.procNumFDs, m.procGoroutines,
	)

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warningf("metrics: process.NewProcess: %v", err)
	}
	m.proc = proc

	return m
}

// CollectSysStats refreshes the RSS/CPU%/FD-count/goroutine-count
// process gauges. Call once per MetricsAggregationWindow.
func (m *Metrics) CollectSysStats() {
	m.procGoroutines.Set(float64(runtime.NumGoroutine()))
	if m.proc == nil {
		return
	}
	if pct, err := m.proc.Percent(0); err == nil {
		m.procCPUPercent.Set(pct)
	}
	if mem, err := m.proc.MemoryInfo(); err == nil {
		m.procRSS.Set(float64(mem.RSS))
	}
	if fds, err := m.proc.NumFDs(); err == nil {
		m.procNumFDs.Set(float64(fds))
	}
}

// RunSysStatsLoop calls CollectSysStats every interval until stop is
// closed.
func (m *Metrics) RunSysStatsLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.CollectSysStats()
		case <-stop:
			return
		}
	}
}

// Handler returns the promhttp handler for this registry's /metrics
// endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Mux returns a ServeMux with /metrics already registered, letting a
// caller add further handlers (badvpn-client's /status endpoint)
// before serving it on the same monitoring port.
func (m *Metrics) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// ListenAndServe blocks serving /metrics on port.
func (m *Metrics) ListenAndServe(port int) error {
	return http.ListenAndServe(fmt.Sprintf(":%d", port), m.Mux())
}
