// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"time"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/media"
	"github.com/cnotch/avchat/stats"
)

// DefaultJitterThreshold 音频抖动缓冲的最低占用
const DefaultJitterThreshold = 3

// VideoPlayback 视频播放阶段：取帧交给显示，队列空时短暂休眠
type VideoPlayback struct {
	base
	ring *media.RingBuffer
	sink av.VideoSink
}

// NewVideoPlayback 创建视频播放阶段
func NewVideoPlayback(ring *media.RingBuffer, sink av.VideoSink, opts Options) *VideoPlayback {
	if opts.Priority == 0 {
		opts.Priority = PriorityVideoPlayback
	}
	return &VideoPlayback{
		base: newBase(av.KindVideo, "playback", opts),
		ring: ring,
		sink: sink,
	}
}

// Run 运行直到运行标志清除
func (s *VideoPlayback) Run(ctl Control) error {
	for ctl.Running() {
		f, ok := s.ring.Pop()
		if !ok {
			time.Sleep(s.backoff)
			continue
		}

		s.sink.ShowFrame(f.Bytes())
		f.Release()
		s.stats.Inc(stats.Played)
	}
	return nil
}

// AudioPlayback 音频播放阶段。
//
// 每轮检查接收队列占用，低于阈值时休眠一个包时长再检查（抖动缓冲）；
// 否则取一个包按名义节拍交给音频输出，迟到的包立即输出以便追赶。
type AudioPlayback struct {
	base
	ring      *media.RingBuffer
	sink      av.AudioSink
	threshold int
	packet    time.Duration
}

// NewAudioPlayback 创建音频播放阶段
func NewAudioPlayback(ring *media.RingBuffer, sink av.AudioSink, packet time.Duration, threshold int, opts Options) *AudioPlayback {
	if opts.Priority == 0 {
		opts.Priority = PriorityAudioPlayback
	}
	if threshold <= 0 {
		threshold = DefaultJitterThreshold
	}
	// 队列最多容纳 Cap()-1 个包，阈值更大时永远达不到
	if max := ring.Cap() - 1; threshold > max {
		threshold = max
	}
	return &AudioPlayback{
		base:      newBase(av.KindAudio, "playback", opts),
		ring:      ring,
		sink:      sink,
		threshold: threshold,
		packet:    packet,
	}
}

// Threshold 抖动缓冲阈值
func (s *AudioPlayback) Threshold() int {
	return s.threshold
}

// Run 运行直到运行标志清除。
// 音频输出出错只记录，不中止会话。
func (s *AudioPlayback) Run(ctl Control) error {
	var next time.Time
	for ctl.Running() {
		if s.ring.Len() < s.threshold {
			s.stats.Inc(stats.Stalls)
			time.Sleep(s.packet)
			continue
		}

		f, ok := s.ring.Pop()
		if !ok {
			continue
		}

		now := time.Now()
		if next.IsZero() || now.Sub(next) > s.packet { // 首包或已落后，从现在开始计节拍
			next = now
		} else if d := next.Sub(now); d > 0 {
			time.Sleep(d)
		}
		next = next.Add(s.packet)

		err := s.sink.PlayPacket(f.Bytes())
		f.Release()
		if err != nil {
			if !ctl.Running() {
				break // 停止时播放端被关闭
			}
			s.warnf("play packet failed: %v", err)
			continue
		}
		s.stats.Inc(stats.Played)
	}
	return nil
}
