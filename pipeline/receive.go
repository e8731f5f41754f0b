// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/media"
	"github.com/cnotch/avchat/network/socket/stream"
	"github.com/cnotch/avchat/protos/avwire"
	"github.com/cnotch/avchat/stats"
)

// ReceiveStage 接收阶段：每轮解出一个完整的线路单元推入接收队列。
// 接收队列满时静默丢弃并计数。
type ReceiveStage struct {
	base
	ring  *media.RingBuffer
	conn  *stream.Conn
	read  func(r io.Reader) (*media.Frame, error)
	reset func()
}

// NewVideoReceive 创建视频接收阶段，长度超过 maxFrameSize 视为失步
func NewVideoReceive(ring *media.RingBuffer, conn *stream.Conn, maxFrameSize int, opts Options) *ReceiveStage {
	if opts.Priority == 0 {
		opts.Priority = PriorityVideoReceive
	}
	d := avwire.NewVideoDeframer(maxFrameSize)
	return &ReceiveStage{
		base:  newBase(av.KindVideo, "receive", opts),
		ring:  ring,
		conn:  conn,
		read:  d.ReadFrame,
		reset: d.Reset,
	}
}

// NewAudioReceive 创建音频接收阶段
func NewAudioReceive(ring *media.RingBuffer, conn *stream.Conn, chunkSize int, opts Options) *ReceiveStage {
	if opts.Priority == 0 {
		opts.Priority = PriorityAudioNet
	}
	d := avwire.NewAudioDeframer(chunkSize)
	return &ReceiveStage{
		base:  newBase(av.KindAudio, "receive", opts),
		ring:  ring,
		conn:  conn,
		read:  d.ReadChunk,
		reset: d.Reset,
	}
}

// Run 运行直到运行标志清除、对端关闭或接收失败。
// 对端关闭与接收失败都会清除运行标志。
func (s *ReceiveStage) Run(ctl Control) error {
	defer s.reset()

	for ctl.Running() {
		f, err := s.read(s.conn)
		if err != nil {
			if stream.IsWouldBlock(err) {
				continue // 读超时本身就是退避
			}
			if isPeerClosed(err) {
				err = fmt.Errorf("%s: %w", s.name, ErrPeerClosed)
				s.logger.Info("peer closed the stream")
			} else {
				err = fmt.Errorf("%s: receive: %w", s.name, err)
				s.logger.Errorf("receive failed, stopping session: %v", err)
			}
			ctl.Abort(err)
			return err
		}

		s.stats.Inc(stats.Received)
		if !s.ring.Push(f) {
			f.Release()
			s.stats.Inc(stats.RxDropped)
		}
	}
	return nil
}

func isPeerClosed(err error) bool {
	return err == io.EOF ||
		err == io.ErrUnexpectedEOF ||
		errors.Is(err, avwire.ErrShortChunk) ||
		errors.Is(err, syscall.ECONNRESET)
}
