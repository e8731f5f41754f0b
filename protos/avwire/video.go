// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package avwire

import (
	"encoding/binary"
	"io"

	"github.com/cnotch/avchat/media"
)

// PutVideoHeader 在 hdr 中写入长度前缀
func PutVideoHeader(hdr []byte, n int) {
	binary.BigEndian.PutUint32(hdr[:HeaderSize], uint32(n))
}

// AppendVideoFrame 把一个完整的视频线路单元追加到 dst
func AppendVideoFrame(dst, payload []byte) []byte {
	var hdr [HeaderSize]byte
	PutVideoHeader(hdr[:], len(payload))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

// WriteVideoFrame 先写长度前缀，再写载荷。
// w 需要保证每次 Write 写完全部数据或返回错误。
func WriteVideoFrame(w io.Writer, payload []byte) error {
	var hdr [HeaderSize]byte
	PutVideoHeader(hdr[:], len(payload))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// VideoDeframer 视频解帧器，容忍部分读取
type VideoDeframer struct {
	maxSize int
	hdr     [HeaderSize]byte
	hdrN    int          // 已读取的前缀字节
	frame   *media.Frame // 正在累积的帧
	n       int          // 已读取的载荷字节
}

// NewVideoDeframer 创建解帧器，maxSize<=0 时使用默认上限
func NewVideoDeframer(maxSize int) *VideoDeframer {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &VideoDeframer{maxSize: maxSize}
}

// Pending 已累积但尚未组成完整帧的字节数
func (d *VideoDeframer) Pending() int {
	return d.hdrN + d.n
}

// ReadFrame 从 r 读取，直到组成一个完整帧。
//
// r 返回的非 EOF 错误原样返回且保留已累积状态，调用者可稍后重试；
// 对端在帧边界关闭返回 io.EOF，帧中间关闭返回 io.ErrUnexpectedEOF；
// 长度超过上限返回 ErrFrameTooLarge。
// r 返回 (0, nil) 时返回 io.ErrNoProgress，同样可以重试。
func (d *VideoDeframer) ReadFrame(r io.Reader) (*media.Frame, error) {
	for d.hdrN < HeaderSize {
		n, err := r.Read(d.hdr[d.hdrN:])
		d.hdrN += n
		if d.hdrN == HeaderSize {
			break
		}
		if err != nil {
			return nil, d.fail(err)
		}
		if n == 0 {
			return nil, io.ErrNoProgress
		}
	}

	if d.frame == nil {
		size := binary.BigEndian.Uint32(d.hdr[:])
		if uint64(size) > uint64(d.maxSize) {
			d.Reset()
			return nil, frameTooLarge(size, d.maxSize)
		}
		d.frame = media.NewFrame(int(size))
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
			return nil, d.fail(err)
		}
		if n == 0 {
			return nil, io.ErrNoProgress
		}
	}

	f := d.frame
	d.frame = nil
	d.hdrN = 0
	d.n = 0
	return f, nil
}

// Reset 丢弃已累积的状态
func (d *VideoDeframer) Reset() {
	if d.frame != nil {
		d.frame.Release()
		d.frame = nil
	}
	d.hdrN = 0
	d.n = 0
}

func (d *VideoDeframer) fail(err error) error {
	if err != io.EOF {
		return err
	}
	if d.Pending() == 0 && d.frame == nil {
		return io.EOF
	}
	d.Reset()
	return io.ErrUnexpectedEOF
}
