// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av

import "io"

// Kind 流类型
type Kind byte

// 流类型
const (
	KindAudio = Kind(iota)
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	}
	return "unknow"
}

// VideoSource 视频采集端。
// 每次调用返回一帧已压缩（可直接传输）的图像；返回空帧表示流结束。
type VideoSource interface {
	ReadFrame() ([]byte, error)
}

// VideoSink 视频显示端。解码失败由实现自行处理，不得向外传播。
type VideoSink interface {
	ShowFrame(p []byte)
}

// AudioSource 音频采集端。
// 每次阻塞调用填满 p（恰好一个音频包）；短读或空读表示流结束。
type AudioSource interface {
	ReadPacket(p []byte) (int, error)
}

// AudioSink 音频播放端，需容忍包的迟到与追赶。
type AudioSink interface {
	PlayPacket(p []byte) error
}

// Devices 一次会话使用的采集/播放端
type Devices struct {
	AudioIn  AudioSource
	AudioOut AudioSink
	VideoIn  VideoSource
	VideoOut VideoSink
}

// CloseSources 关闭采集端，解除阻塞中的读取
func (d *Devices) CloseSources() {
	closeQuietly(d.AudioIn)
	closeQuietly(d.VideoIn)
}

// CloseSinks 关闭播放端，解除阻塞中的写入；
// 关闭后播放端仍可能被调用，需返回错误或直接忽略
func (d *Devices) CloseSinks() {
	closeQuietly(d.AudioOut)
	closeQuietly(d.VideoOut)
}

func closeQuietly(v interface{}) {
	if c, ok := v.(io.Closer); ok {
		c.Close()
	}
}
