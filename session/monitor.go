// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"time"

	"github.com/cnotch/avchat/stats"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
)

const monitorTag = "The task of sampling session ring occupancy and flow rates"

// 会话监视计划，会话结束后不再调度
type monitor struct {
	s      *Session
	period time.Duration
	last   time.Time
	audio  stats.FlowSample
	video  stats.FlowSample
}

func startMonitor(s *Session, period time.Duration) {
	m := &monitor{s: s, period: period, last: time.Now()}
	scheduler.PostFunc(m, m.run, monitorTag)
}

func (m *monitor) Next(t time.Time) time.Time {
	select {
	case <-m.s.Done():
		resetGauges()
		return time.Time{}
	default:
		return t.Add(m.period)
	}
}

func (m *monitor) run() {
	if !m.s.Running() {
		return
	}

	now := time.Now()
	secs := now.Sub(m.last).Seconds()
	m.last = now

	audio := m.s.audio.flow.GetSample()
	video := m.s.video.flow.GetSample()
	ain, aout := audio.Sub(m.audio).Rate(secs)
	vin, vout := video.Sub(m.video).Rate(secs)
	m.audio, m.video = audio, video

	stats.FlowRate.WithLabelValues("audio", "in").Set(ain)
	stats.FlowRate.WithLabelValues("audio", "out").Set(aout)
	stats.FlowRate.WithLabelValues("video", "in").Set(vin)
	stats.FlowRate.WithLabelValues("video", "out").Set(vout)

	stats.RingOccupancy.WithLabelValues("audio", "tx").Set(float64(m.s.audio.tx.Len()))
	stats.RingOccupancy.WithLabelValues("audio", "rx").Set(float64(m.s.audio.rx.Len()))
	stats.RingOccupancy.WithLabelValues("video", "tx").Set(float64(m.s.video.tx.Len()))
	stats.RingOccupancy.WithLabelValues("video", "rx").Set(float64(m.s.video.rx.Len()))

	if m.s.logger.LevelEnabled(xlog.DebugLevel) {
		m.s.logger.Debugf("audio in %.0f B/s out %.0f B/s, video in %.0f B/s out %.0f B/s",
			ain, aout, vin, vout)
	}
}

func resetGauges() {
	stats.FlowRate.Reset()
	stats.RingOccupancy.Reset()
}
