// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/media"
	"github.com/cnotch/avchat/network/socket/stream"
	"github.com/cnotch/avchat/protos/avwire"
	"github.com/cnotch/avchat/stats"
)

// TransmitStage 发送阶段：从发送队列取帧、分帧并完整发送。
// 无论发送成功与否，帧都在本阶段释放。
type TransmitStage struct {
	base
	ring  *media.RingBuffer
	conn  *stream.Conn
	write func(w io.Writer, p []byte) error
}

// NewVideoTransmit 创建视频发送阶段，每帧前加 4 字节长度
func NewVideoTransmit(ring *media.RingBuffer, conn *stream.Conn, opts Options) *TransmitStage {
	if opts.Priority == 0 {
		opts.Priority = PriorityVideoTransmit
	}
	return &TransmitStage{
		base:  newBase(av.KindVideo, "transmit", opts),
		ring:  ring,
		conn:  conn,
		write: avwire.WriteVideoFrame,
	}
}

// NewAudioTransmit 创建音频发送阶段，尺寸不符的块被丢弃
func NewAudioTransmit(ring *media.RingBuffer, conn *stream.Conn, chunkSize int, opts Options) *TransmitStage {
	if opts.Priority == 0 {
		opts.Priority = PriorityAudioNet
	}
	framer := avwire.AudioFramer{ChunkSize: chunkSize}
	return &TransmitStage{
		base:  newBase(av.KindAudio, "transmit", opts),
		ring:  ring,
		conn:  conn,
		write: framer.WriteChunk,
	}
}

// Run 运行直到运行标志清除或发送失败。
// 发送失败清除运行标志并返回原因。
func (s *TransmitStage) Run(ctl Control) error {
	w := s.conn.Sender(ctl.Running)
	for ctl.Running() {
		f, ok := s.ring.Pop()
		if !ok {
			time.Sleep(s.backoff)
			continue
		}

		err := s.write(w, f.Bytes())
		size := f.Len()
		f.Release()

		switch err {
		case nil:
			s.stats.Inc(stats.Sent)
		case avwire.ErrChunkSize:
			s.stats.Inc(stats.TxRejected)
			s.warnf("drop %d bytes chunk of wrong size", size)
		case stream.ErrStopped:
			return nil
		default:
			err = fmt.Errorf("%s: send: %w", s.name, err)
			s.logger.Errorf("send failed, stopping session: %v", err)
			ctl.Abort(err)
			return err
		}
	}
	return nil
}
