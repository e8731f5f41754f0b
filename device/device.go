// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package device 提供会话使用的采集/播放端实现。
//
// 每类设备以 config.Provider 的形式注册，由配置选择并配置；
// 每个会话打开一组新的设备实例，会话结束时关闭。
package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/config"
)

// ErrUnsupportedFormat 设备不支持请求的媒体格式
var ErrUnsupportedFormat = errors.New("device: unsupported media format")

// AudioInput 音频采集端提供者
type AudioInput interface {
	config.Provider
	OpenAudioIn(meta av.AudioMeta) (av.AudioSource, error)
}

// AudioOutput 音频播放端提供者
type AudioOutput interface {
	config.Provider
	OpenAudioOut(meta av.AudioMeta) (av.AudioSink, error)
}

// VideoInput 视频采集端提供者
type VideoInput interface {
	config.Provider
	OpenVideoIn(meta av.VideoMeta) (av.VideoSource, error)
}

// VideoOutput 视频显示端提供者
type VideoOutput interface {
	config.Provider
	OpenVideoOut(meta av.VideoMeta) (av.VideoSink, error)
}

// AudioInputs 内置音频采集提供者，第一个为默认
func AudioInputs() []config.Provider {
	return []config.Provider{new(SoxInput), new(ToneInput)}
}

// AudioOutputs 内置音频播放提供者，第一个为默认
func AudioOutputs() []config.Provider {
	return []config.Provider{new(SoxOutput), new(RTPOutput), new(DiscardOutput)}
}

// VideoInputs 内置视频采集提供者，第一个为默认
func VideoInputs() []config.Provider {
	return []config.Provider{new(FfmpegInput), new(PatternInput)}
}

// VideoOutputs 内置视频显示提供者，第一个为默认
func VideoOutputs() []config.Provider {
	return []config.Provider{new(FfplayOutput), new(WebsocketOutput), new(DiscardOutput)}
}

// Set 一组已配置的设备提供者
type Set struct {
	AudioIn  AudioInput
	AudioOut AudioOutput
	VideoIn  VideoInput
	VideoOut VideoOutput
}

// NewSet 由已加载的提供者组成设备集合
func NewSet(ain, aout, vin, vout config.Provider) (*Set, error) {
	s := new(Set)
	var ok bool
	if s.AudioIn, ok = ain.(AudioInput); !ok {
		return nil, fmt.Errorf("device: '%s' is not an audio input", ain.Name())
	}
	if s.AudioOut, ok = aout.(AudioOutput); !ok {
		return nil, fmt.Errorf("device: '%s' is not an audio output", aout.Name())
	}
	if s.VideoIn, ok = vin.(VideoInput); !ok {
		return nil, fmt.Errorf("device: '%s' is not a video input", vin.Name())
	}
	if s.VideoOut, ok = vout.(VideoOutput); !ok {
		return nil, fmt.Errorf("device: '%s' is not a video output", vout.Name())
	}
	return s, nil
}

// Loader 按配置从候选中选出并配置提供者，如 config.LoadAudioInProvider
type Loader func(providers ...config.Provider) (config.Provider, error)

// LoadSet 用四个加载器从内置提供者中加载设备集合
func LoadSet(ain, aout, vin, vout Loader) (*Set, error) {
	load := func(what string, l Loader, builtins []config.Provider) (config.Provider, error) {
		p, err := l(builtins...)
		if err != nil {
			return nil, fmt.Errorf("device: load %s: %w", what, err)
		}
		return p, nil
	}

	var ps [4]config.Provider
	var err error
	if ps[0], err = load("audio input", ain, AudioInputs()); err != nil {
		return nil, err
	}
	if ps[1], err = load("audio output", aout, AudioOutputs()); err != nil {
		return nil, err
	}
	if ps[2], err = load("video input", vin, VideoInputs()); err != nil {
		return nil, err
	}
	if ps[3], err = load("video output", vout, VideoOutputs()); err != nil {
		return nil, err
	}
	return NewSet(ps[0], ps[1], ps[2], ps[3])
}

// Open 打开一组设备实例；任何一个失败时关闭已打开的部分
func (s *Set) Open(audio av.AudioMeta, video av.VideoMeta) (*av.Devices, error) {
	devs := new(av.Devices)
	fail := func(what, name string, err error) (*av.Devices, error) {
		devs.CloseSources()
		devs.CloseSinks()
		return nil, fmt.Errorf("open %s '%s': %w", what, name, err)
	}

	var err error
	if devs.AudioIn, err = s.AudioIn.OpenAudioIn(audio); err != nil {
		return fail("audio input", s.AudioIn.Name(), err)
	}
	if devs.AudioOut, err = s.AudioOut.OpenAudioOut(audio); err != nil {
		return fail("audio output", s.AudioOut.Name(), err)
	}
	if devs.VideoIn, err = s.VideoIn.OpenVideoIn(video); err != nil {
		return fail("video input", s.VideoIn.Name(), err)
	}
	if devs.VideoOut, err = s.VideoOut.OpenVideoOut(video); err != nil {
		return fail("video output", s.VideoOut.Name(), err)
	}
	return devs, nil
}

// String 设备集合描述
func (s *Set) String() string {
	return fmt.Sprintf("audio %s -> %s, video %s -> %s",
		s.AudioIn.Name(), s.AudioOut.Name(), s.VideoIn.Name(), s.VideoOut.Name())
}

// isJPEG 视频设备只处理逐帧 JPEG
func isJPEG(codec string) bool {
	switch strings.ToUpper(codec) {
	case "", "JPEG", "MJPEG":
		return true
	}
	return false
}

// 配置项读取，JSON 数值解码为 float64

func getString(c map[string]interface{}, key, def string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func getInt(c map[string]interface{}, key string, def int) (int, error) {
	v, ok := c[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return def, fmt.Errorf("config '%s': %w", key, err)
		}
		return i, nil
	}
	return def, fmt.Errorf("config '%s': unexpected type %T", key, v)
}

func getStrings(c map[string]interface{}, key string) []string {
	v, ok := c[key]
	if !ok {
		return nil
	}
	switch a := v.(type) {
	case []string:
		return a
	case []interface{}:
		ss := make([]string, 0, len(a))
		for _, e := range a {
			if s, ok := e.(string); ok {
				ss = append(ss, s)
			}
		}
		return ss
	case string:
		return strings.Fields(a)
	}
	return nil
}
