// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package avwire

import (
	"io"

	"github.com/cnotch/avchat/media"
)

// AudioFramer 音频分帧器，只接受约定尺寸的块
type AudioFramer struct {
	ChunkSize int
}

// Check 检查块尺寸
func (f AudioFramer) Check(p []byte) error {
	if len(p) != f.ChunkSize {
		return ErrChunkSize
	}
	return nil
}

// WriteChunk 写一个音频块；尺寸不符的块被拒绝且不写出任何字节，
// 因此不会破坏后续块的对齐。
func (f AudioFramer) WriteChunk(w io.Writer, p []byte) error {
	if err := f.Check(p); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}

// AudioDeframer 音频解帧器，每次产出恰好 ChunkSize 字节
type AudioDeframer struct {
	size  int
	frame *media.Frame
	n     int
}

// NewAudioDeframer 创建音频解帧器
func NewAudioDeframer(chunkSize int) *AudioDeframer {
	return &AudioDeframer{size: chunkSize}
}

// ChunkSize 块尺寸
func (d *AudioDeframer) ChunkSize() int {
	return d.size
}

// Pending 已累积的字节数
func (d *AudioDeframer) Pending() int {
	return d.n
}

// ReadChunk 从 r 读取一个完整的音频块。
//
// 临时错误原样返回并保留状态；在块边界遇到 EOF 返回 io.EOF；
// 块中间遇到 EOF 时丢弃残块并返回 ErrShortChunk。
func (d *AudioDeframer) ReadChunk(r io.Reader) (*media.Frame, error) {
	if d.frame == nil {
		d.frame = media.NewFrame(d.size)
		d.n = 0
	}

	buf := d.frame.Bytes()
	for d.n < len(buf) {
		n, err := r.Read(buf[d.n:])
		d.n += n
		if d.n == len(buf) {
			break
		}
		if err != nil {
			if err == io.EOF {
				pending := d.n
				d.Reset()
				if pending > 0 {
					return nil, ErrShortChunk
				}
			}
			return nil, err
		}
		if n == 0 {
			return nil, io.ErrNoProgress
		}
	}

	f := d.frame
	d.frame = nil
	d.n = 0
	return f, nil
}

// Reset 丢弃残块
func (d *AudioDeframer) Reset() {
	if d.frame != nil {
		d.frame.Release()
		d.frame = nil
	}
	d.n = 0
}
