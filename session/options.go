// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"time"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/network/link"
	"github.com/cnotch/avchat/pipeline"
	"github.com/cnotch/avchat/protos/avwire"
)

// 默认参数
const (
	DefaultVideoRing      = 32
	DefaultAudioRing      = 64
	DefaultVideoSockBuf   = 16 * 1024
	DefaultMonitorPeriod  = 5 * time.Second
	defaultStopJoinWarnAt = time.Second
)

// Options 会话调优参数，对每个会话生效
type Options struct {
	Audio av.AudioMeta
	Video av.VideoMeta

	AudioTxRing     int  // 音频发送队列槽数，2 的幂
	AudioRxRing     int  // 音频接收队列槽数
	VideoTxRing     int  // 视频发送队列槽数
	VideoRxRing     int  // 视频接收队列槽数
	JitterThreshold int  // 音频抖动缓冲阈值
	SkipEmptyVideo  bool // 视频采集遇空帧时跳过而不是结束

	MaxFrameSize int           // 视频帧长度上限
	VideoSockBuf int           // 视频 socket 内核缓冲
	Backoff      time.Duration // 非阻塞读写与空队列退避
	DialTimeout  time.Duration
	Realtime     bool // 尝试提升阶段线程优先级
	StageWarns   int  // 每个阶段每秒最多输出的告警数

	MonitorPeriod time.Duration // 监视任务周期，<=0 不启动
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		Audio: av.DefaultAudioMeta(),
		Video: av.VideoMeta{
			Codec:     "JPEG",
			Width:     av.DefaultWidth,
			Height:    av.DefaultHeight,
			FrameRate: av.DefaultFrameRate,
			Quality:   av.DefaultQuality,
		},
		AudioTxRing:     DefaultAudioRing,
		AudioRxRing:     DefaultAudioRing,
		VideoTxRing:     DefaultVideoRing,
		VideoRxRing:     DefaultVideoRing,
		JitterThreshold: pipeline.DefaultJitterThreshold,
		MaxFrameSize:    avwire.DefaultMaxFrameSize,
		VideoSockBuf:    DefaultVideoSockBuf,
		Backoff:         pipeline.DefaultBackoff,
		DialTimeout:     link.DefaultDialTimeout,
		MonitorPeriod:   DefaultMonitorPeriod,
		StageWarns:      1,
	}
}

// normalize 用默认值补齐缺省项
func (o Options) normalize() Options {
	def := DefaultOptions()
	if o.Audio.Validate() != nil {
		o.Audio = def.Audio
	}
	if o.Video.FrameRate <= 0 {
		o.Video.FrameRate = def.Video.FrameRate
	}
	if o.Video.Codec == "" {
		o.Video.Codec = def.Video.Codec
	}
	if o.AudioTxRing <= 0 {
		o.AudioTxRing = def.AudioTxRing
	}
	if o.AudioRxRing <= 0 {
		o.AudioRxRing = def.AudioRxRing
	}
	if o.VideoTxRing <= 0 {
		o.VideoTxRing = def.VideoTxRing
	}
	if o.VideoRxRing <= 0 {
		o.VideoRxRing = def.VideoRxRing
	}
	if o.JitterThreshold <= 0 {
		o.JitterThreshold = def.JitterThreshold
	}
	if o.JitterThreshold >= o.AudioRxRing {
		o.JitterThreshold = o.AudioRxRing - 1
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = def.MaxFrameSize
	}
	if o.Backoff <= 0 {
		o.Backoff = def.Backoff
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = def.DialTimeout
	}
	if o.StageWarns <= 0 {
		o.StageWarns = def.StageWarns
	}
	return o
}

// Params 一次会话的启动参数
type Params struct {
	Role       link.Role `json:"-"`
	Peer       string    `json:"peer,omitempty"` // 客户端必填
	Port       int       `json:"port"`
	ListenHost string    `json:"-"` // 服务端监听地址，空为全部网卡
}

// Validate 检查启动参数
func (p Params) Validate() error {
	if err := link.ValidatePort(p.Port); err != nil {
		return err
	}
	switch p.Role {
	case link.RoleServer:
	case link.RoleClient:
		if p.Peer == "" {
			return ErrPeerRequired
		}
	default:
		return link.ErrInvalidRole
	}
	return nil
}
