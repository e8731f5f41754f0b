// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/network/link"
	"github.com/cnotch/avchat/session"
	cfg "github.com/cnotch/loader"
	"github.com/cnotch/xlog"
	"github.com/joho/godotenv"
)

// 服务名
const (
	Vendor  = "CAOHONGJU"
	Name    = "avchat"
	Version = "V1.0.0"
)

var globalC *config

// InitConfig 初始化 Config
func InitConfig() {
	exe, err := os.Executable()
	if err != nil {
		xlog.Panic(err.Error())
	}

	configPath := filepath.Join(filepath.Dir(exe), Name+".conf")

	// 可选的 .env 文件，先于环境变量加载器生效
	if err = godotenv.Load(); err != nil && !os.IsNotExist(err) {
		xlog.Warnf("load .env failed: %v", err)
	}

	globalC = new(config)
	globalC.initFlags()

	// 创建或加载配置文件
	if err := cfg.Load(globalC,
		&cfg.JSONLoader{Path: configPath, CreatedIfNonExsit: true},
		&cfg.EnvLoader{Prefix: strings.ToUpper(Name)},
		&cfg.FlagLoader{}); err != nil {
		// 异常，直接退出
		xlog.Panic(err.Error())
	}

	// 初始化日志
	globalC.Log.initLogger()
}

// Addr Listen addr
func Addr() string {
	if globalC == nil || globalC.ListenAddr == "" {
		return ":6080"
	}
	return globalC.ListenAddr
}

// Profile 是否启动 Http Profile
func Profile() bool {
	if globalC == nil {
		return false
	}
	return globalC.Profile
}

// AutoSession 启动时自动建立的会话；mode 为 none 或空时返回 false
func AutoSession() (session.Params, bool, error) {
	if globalC == nil {
		return session.Params{}, false, nil
	}
	sc := globalC.Session
	mode := strings.ToLower(strings.TrimSpace(sc.Mode))
	if mode == "" || mode == "none" {
		return session.Params{}, false, nil
	}

	role, err := link.ParseRole(mode)
	if err != nil {
		return session.Params{}, false, err
	}
	p := session.Params{Role: role, Peer: sc.Peer, Port: sc.Port}
	if err = p.Validate(); err != nil {
		return p, false, err
	}
	return p, true, nil
}

// SessionOptions 会话参数，未配置的项使用默认值
func SessionOptions() session.Options {
	opts := session.DefaultOptions()
	if globalC == nil {
		return opts
	}

	a := globalC.Audio
	audio := opts.Audio
	setInt(&audio.SampleRate, a.SampleRate)
	setInt(&audio.SampleSize, a.SampleSize)
	setInt(&audio.Channels, a.Channels)
	setInt(&audio.PacketMs, a.PacketMs)
	if audio.Validate() == nil {
		opts.Audio = audio
	} else {
		xlog.Warnf("invalid audio parameters %+v, use default", audio)
	}
	setInt(&opts.AudioTxRing, a.TxRing)
	setInt(&opts.AudioRxRing, a.RxRing)
	setInt(&opts.JitterThreshold, a.JitterThreshold)

	v := globalC.Video
	if v.FrameRate > 0 {
		opts.Video.FrameRate = v.FrameRate
	}
	setInt(&opts.Video.Width, v.Width)
	setInt(&opts.Video.Height, v.Height)
	if v.Quality > 0 && v.Quality <= 100 {
		opts.Video.Quality = v.Quality
	}
	setInt(&opts.VideoTxRing, v.TxRing)
	setInt(&opts.VideoRxRing, v.RxRing)
	setInt(&opts.MaxFrameSize, v.MaxFrameSize)
	setInt(&opts.VideoSockBuf, v.SockBuf)
	opts.SkipEmptyVideo = v.SkipEmpty

	n := globalC.Net
	if n.BackoffMs > 0 {
		opts.Backoff = time.Duration(n.BackoffMs) * time.Millisecond
	}
	if n.DialTimeoutMs > 0 {
		opts.DialTimeout = time.Duration(n.DialTimeoutMs) * time.Millisecond
	}
	if n.MonitorSec > 0 {
		opts.MonitorPeriod = time.Duration(n.MonitorSec) * time.Second
	}
	opts.Realtime = n.Realtime
	opts.StageWarns = globalC.Log.stageWarns()
	return opts
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func deviceConfig(sel func(d *DevicesConfig) *ProviderConfig) *ProviderConfig {
	if globalC == nil {
		return nil
	}
	return sel(&globalC.Devices)
}

// LoadAudioInProvider 加载音频采集提供者
func LoadAudioInProvider(providers ...Provider) (Provider, error) {
	return LoadProvider(deviceConfig(func(d *DevicesConfig) *ProviderConfig { return d.AudioIn }), providers...)
}

// LoadAudioOutProvider 加载音频播放提供者
func LoadAudioOutProvider(providers ...Provider) (Provider, error) {
	return LoadProvider(deviceConfig(func(d *DevicesConfig) *ProviderConfig { return d.AudioOut }), providers...)
}

// LoadVideoInProvider 加载视频采集提供者
func LoadVideoInProvider(providers ...Provider) (Provider, error) {
	return LoadProvider(deviceConfig(func(d *DevicesConfig) *ProviderConfig { return d.VideoIn }), providers...)
}

// LoadVideoOutProvider 加载视频显示提供者
func LoadVideoOutProvider(providers ...Provider) (Provider, error) {
	return LoadProvider(deviceConfig(func(d *DevicesConfig) *ProviderConfig { return d.VideoOut }), providers...)
}

// MediaMeta 会话使用的音视频参数
func MediaMeta() (av.AudioMeta, av.VideoMeta) {
	opts := SessionOptions()
	return opts.Audio, opts.Video
}
