// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
)

// config 服务配置
type config struct {
	ListenAddr string        `json:"listen"`  // 控制服务侦听地址和端口
	Profile    bool          `json:"profile"` // 是否启动Profile
	Session    SessionConfig `json:"session"` // 启动时自动建立的会话
	Audio      AudioConfig   `json:"audio"`   // 音频参数
	Video      VideoConfig   `json:"video"`   // 视频参数
	Net        NetConfig     `json:"net"`     // 网络与调度
	Devices    DevicesConfig `json:"devices"` // 采集/播放设备
	Log        LogConfig     `json:"log"`     // 日志配置
}

// SessionConfig 自动会话配置
type SessionConfig struct {
	Mode string `json:"mode"` // server|client|none
	Peer string `json:"peer"` // 客户端模式的对端地址
	Port int    `json:"port"` // 基础端口，音频用 port，视频用 port+1
}

// AudioConfig 音频配置
type AudioConfig struct {
	SampleRate      int `json:"samplerate"`
	SampleSize      int `json:"samplesize"`
	Channels        int `json:"channels"`
	PacketMs        int `json:"packetms"`
	TxRing          int `json:"txring"`
	RxRing          int `json:"rxring"`
	JitterThreshold int `json:"jitter"` // 开始播放前需要积累的包数
}

// VideoConfig 视频配置
type VideoConfig struct {
	FrameRate    float64 `json:"framerate"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Quality      int     `json:"quality"`
	TxRing       int     `json:"txring"`
	RxRing       int     `json:"rxring"`
	MaxFrameSize int     `json:"maxframesize"`
	SockBuf      int     `json:"sockbuf"`
	SkipEmpty    bool    `json:"skipempty"` // 采集到空帧时跳过而不是结束
}

// NetConfig 网络与调度配置
type NetConfig struct {
	BackoffMs     int  `json:"backoffms"`
	DialTimeoutMs int  `json:"dialtimeoutms"`
	Realtime      bool `json:"realtime"` // 按阶段提升线程优先级
	MonitorSec    int  `json:"monitorsec"`
}

// DevicesConfig 设备提供者配置
type DevicesConfig struct {
	AudioIn  *ProviderConfig `json:"audioin,omitempty"`
	AudioOut *ProviderConfig `json:"audioout,omitempty"`
	VideoIn  *ProviderConfig `json:"videoin,omitempty"`
	VideoOut *ProviderConfig `json:"videoout,omitempty"`
}

func (c *config) initFlags() {
	// 控制服务的端口
	flag.StringVar(&c.ListenAddr, "listen", ":6080", "Set control server listen address")
	flag.BoolVar(&c.Profile, "pprof", false,
		"Determines if profile enabled")

	// 会话
	flag.StringVar(&c.Session.Mode, "mode", "none",
		"Set the session started at launch: server, client or none")
	flag.StringVar(&c.Session.Peer, "peer", "", "Set the peer address in client mode")
	flag.IntVar(&c.Session.Port, "port", 6000,
		"Set the base port, audio uses port and video uses port+1")

	// 媒体
	flag.IntVar(&c.Audio.SampleRate, "audio-rate", 44100, "Set the audio sample rate")
	flag.IntVar(&c.Audio.PacketMs, "audio-packetms", 20, "Set the audio packet duration in milliseconds")
	flag.IntVar(&c.Audio.JitterThreshold, "audio-jitter", 3,
		"Set the number of audio packets buffered before playback")
	flag.Float64Var(&c.Video.FrameRate, "video-fps", 30, "Set the video capture frame rate")
	flag.IntVar(&c.Video.Width, "video-width", 640, "Set the video capture width")
	flag.IntVar(&c.Video.Height, "video-height", 360, "Set the video capture height")
	flag.IntVar(&c.Video.Quality, "video-quality", 50, "Set the JPEG quality (1-100)")

	// 网络
	flag.IntVar(&c.Net.BackoffMs, "backoff", 2, "Set the stage backoff in milliseconds")
	flag.BoolVar(&c.Net.Realtime, "realtime", false,
		"Determines if stage threads get raised scheduling priority")

	// 初始化日志配置
	c.Log.initFlags()
}
