// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av

import (
	"errors"
	"time"
)

// 默认参数，与 SoX `rec -t raw -b 16 -c 1 -e s -r 44100` 一致
const (
	DefaultSampleRate = 44100
	DefaultSampleSize = 16
	DefaultChannels   = 1
	DefaultPacketMs   = 20

	DefaultFrameRate = 30
	DefaultWidth     = 640
	DefaultHeight    = 360
	DefaultQuality   = 50
)

// ErrInvalidMeta 媒体参数非法
var ErrInvalidMeta = errors.New("invalid media parameters")

// VideoMeta 视频元数据
type VideoMeta struct {
	Codec     string  `json:"codec"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FrameRate float64 `json:"framerate,omitempty"`
	Quality   int     `json:"quality,omitempty"` // JPEG 质量 1-100
}

// FramePeriod 帧间隔
func (m VideoMeta) FramePeriod() time.Duration {
	if m.FrameRate <= 0 {
		return time.Second / DefaultFrameRate
	}
	return time.Duration(float64(time.Second) / m.FrameRate)
}

// AudioMeta 音频元数据，采样为有符号小端 PCM
type AudioMeta struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"samplerate,omitempty"`
	SampleSize int    `json:"samplesize,omitempty"` // bits
	Channels   int    `json:"channels,omitempty"`
	PacketMs   int    `json:"packetms,omitempty"` // 每个包的时长
}

// DefaultAudioMeta 44100Hz 16bit 单声道 20ms
func DefaultAudioMeta() AudioMeta {
	return AudioMeta{
		Codec:      "L16",
		SampleRate: DefaultSampleRate,
		SampleSize: DefaultSampleSize,
		Channels:   DefaultChannels,
		PacketMs:   DefaultPacketMs,
	}
}

// Validate 检查参数
func (m AudioMeta) Validate() error {
	if m.SampleRate < 1000 || m.SampleSize%8 != 0 || m.SampleSize <= 0 ||
		m.Channels <= 0 || m.PacketMs <= 0 {
		return ErrInvalidMeta
	}
	return nil
}

// BytesPerSample 每个采样点的字节数（含全部声道）
func (m AudioMeta) BytesPerSample() int {
	return m.SampleSize / 8 * m.Channels
}

// SamplesPerPacket 每个包的采样点数，先乘后除避免 44100/1000 截断
func (m AudioMeta) SamplesPerPacket() int {
	return m.SampleRate * m.PacketMs / 1000
}

// PacketBytes 每个音频包的字节数:
// sampleRate * packetMs / 1000 * bytesPerSample
func (m AudioMeta) PacketBytes() int {
	return m.SamplesPerPacket() * m.BytesPerSample()
}

// PacketDuration 每个包的时长
func (m AudioMeta) PacketDuration() time.Duration {
	return time.Duration(m.PacketMs) * time.Millisecond
}
