// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "avchat"

var (
	registry = prometheus.NewRegistry()

	// RingOccupancy 队列占用，由会话监视任务定期设置
	RingOccupancy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ring_occupancy",
		Help:      "Frames currently queued in a session ring buffer",
	}, []string{"stream", "ring"})

	// FlowRate 区间速率（字节/秒），由会话监视任务定期设置
	FlowRate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "flow_rate_bytes",
		Help:      "Socket throughput of the active session in bytes per second",
	}, []string{"stream", "direction"})
)

func init() {
	registry.MustRegister(RingOccupancy, FlowRate, newProcCollector())
	registerStream("audio", AudioTotals, AudioFlow)
	registerStream("video", VideoTotals, VideoFlow)

	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of running sessions",
	}, func() float64 { return float64(Sessions.GetSample().Active) }))
	registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Number of sessions established since start",
	}, func() float64 { return float64(Sessions.GetSample().Total) }))
}

func registerStream(kind string, s *Stream, flow Flow) {
	for _, c := range Counters() {
		c := c
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: kind,
			Name:      c.String() + "_total",
			Help:      "Pipeline " + c.String() + " frames",
		}, func() float64 { return float64(s.Get(c)) }))
	}

	registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: kind,
		Name:      "in_bytes_total",
		Help:      "Bytes received from the peer",
	}, func() float64 { return float64(flow.GetSample().InBytes) }))
	registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: kind,
		Name:      "out_bytes_total",
		Help:      "Bytes sent to the peer",
	}, func() float64 { return float64(flow.GetSample().OutBytes) }))
}

// Registry 指标注册表
func Registry() *prometheus.Registry {
	return registry
}

// MetricsHandler 返回 Prometheus 抓取处理器
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
