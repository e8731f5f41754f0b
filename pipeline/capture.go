// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"errors"
	"io"
	"time"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/media"
	"github.com/cnotch/avchat/stats"
)

// ErrEndOfStream 采集源结束
var ErrEndOfStream = errors.New("pipeline: end of stream")

// CaptureStage 采集阶段：按媒体节拍从采集源取帧，推入发送队列。
// 队列满时丢弃新帧（drop-newest），不重试。
type CaptureStage struct {
	base
	ring   *media.RingBuffer
	period time.Duration // >0 时按节拍休眠；0 时由采集源的阻塞读取定节拍
	read   func() (*media.Frame, error)
}

// NewVideoCapture 创建视频采集阶段，period 为帧间隔。
// skipEmpty 为 true 时空帧被跳过，否则空帧视为流结束。
func NewVideoCapture(src av.VideoSource, ring *media.RingBuffer, period time.Duration, skipEmpty bool, opts Options) *CaptureStage {
	if opts.Priority == 0 {
		opts.Priority = PriorityVideoCapture
	}

	return &CaptureStage{
		base:   newBase(av.KindVideo, "capture", opts),
		ring:   ring,
		period: period,
		read: func() (*media.Frame, error) {
			p, err := src.ReadFrame()
			if len(p) > 0 {
				return media.CopyFrame(p), nil
			}
			if err != nil {
				return nil, err
			}
			if !skipEmpty {
				return nil, ErrEndOfStream
			}
			return nil, nil
		},
	}
}

// NewAudioCapture 创建音频采集阶段，每次阻塞读取恰好一个音频包；
// 短读或空读视为流结束。
func NewAudioCapture(src av.AudioSource, ring *media.RingBuffer, chunkSize int, opts Options) *CaptureStage {
	if opts.Priority == 0 {
		opts.Priority = PriorityAudioCapture
	}

	return &CaptureStage{
		base: newBase(av.KindAudio, "capture", opts),
		ring: ring,
		read: func() (*media.Frame, error) {
			f := media.NewFrame(chunkSize)
			n, err := src.ReadPacket(f.Bytes())
			if n == chunkSize {
				return f, nil
			}
			f.Release()
			if err == nil {
				err = ErrEndOfStream
			}
			return nil, err
		},
	}
}

// Run 运行直到运行标志清除或采集源结束。
// 采集源结束不影响会话的其它阶段。
func (s *CaptureStage) Run(ctl Control) error {
	next := time.Now()
	for ctl.Running() {
		if s.period > 0 {
			now := time.Now()
			if d := next.Sub(now); d > 0 {
				time.Sleep(d)
			} else if -d > s.period { // 落后超过一个周期，不追赶
				next = now
			}
			next = next.Add(s.period)
		}

		f, err := s.read()
		if err != nil {
			if !ctl.Running() {
				break // 停止时采集源被关闭
			}
			if err == io.EOF || err == ErrEndOfStream {
				s.logger.Info("capture source reached end of stream")
			} else {
				s.logger.Errorf("capture source failed: %v", err)
			}
			return nil
		}
		if f == nil { // 跳过的空帧
			continue
		}

		s.stats.Inc(stats.Captured)
		if !s.ring.Push(f) {
			f.Release()
			s.stats.Inc(stats.CapDropped)
			s.warnf("tx queue full, frame dropped (dropped = %d)", s.stats.Get(stats.CapDropped))
		}
	}
	return nil
}
