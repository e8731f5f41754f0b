// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/cnotch/avchat/network/link"
	"github.com/cnotch/avchat/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedProvider struct {
	name string
	cfg  map[string]interface{}
}

func (p *namedProvider) Name() string { return p.name }
func (p *namedProvider) Configure(config map[string]interface{}) error {
	p.cfg = config
	return nil
}

func withConfig(t *testing.T, c *config) {
	old := globalC
	globalC = c
	t.Cleanup(func() { globalC = old })
}

func TestDefaultsWithoutInit(t *testing.T) {
	withConfig(t, nil)

	assert.Equal(t, ":6080", Addr())
	assert.False(t, Profile())
	assert.Equal(t, session.DefaultOptions(), SessionOptions())

	_, ok, err := AutoSession()
	assert.False(t, ok)
	assert.NoError(t, err)

	p, err := LoadAudioInProvider(&namedProvider{name: "first"}, &namedProvider{name: "second"})
	require.NoError(t, err)
	assert.Equal(t, "first", p.Name())
}

func TestSessionOptions(t *testing.T) {
	c := new(config)
	c.Audio = AudioConfig{SampleRate: 48000, PacketMs: 10, TxRing: 128, JitterThreshold: 5}
	c.Video = VideoConfig{FrameRate: 15, Quality: 80, MaxFrameSize: 1 << 16, SkipEmpty: true}
	c.Net = NetConfig{BackoffMs: 5, DialTimeoutMs: 1500, Realtime: true}
	withConfig(t, c)

	opts := SessionOptions()
	assert.Equal(t, 48000, opts.Audio.SampleRate)
	assert.Equal(t, 960, opts.Audio.PacketBytes())
	assert.Equal(t, 128, opts.AudioTxRing)
	assert.Equal(t, session.DefaultAudioRing, opts.AudioRxRing)
	assert.Equal(t, 5, opts.JitterThreshold)
	assert.Equal(t, 15.0, opts.Video.FrameRate)
	assert.Equal(t, 80, opts.Video.Quality)
	assert.Equal(t, 1<<16, opts.MaxFrameSize)
	assert.True(t, opts.SkipEmptyVideo)
	assert.Equal(t, 5*time.Millisecond, opts.Backoff)
	assert.Equal(t, 1500*time.Millisecond, opts.DialTimeout)
	assert.True(t, opts.Realtime)

	audio, video := MediaMeta()
	assert.Equal(t, opts.Audio, audio)
	assert.Equal(t, opts.Video, video)
}

func TestSessionOptions_InvalidAudio(t *testing.T) {
	c := new(config)
	c.Audio = AudioConfig{SampleSize: 12}
	withConfig(t, c)
	assert.Equal(t, session.DefaultOptions().Audio, SessionOptions().Audio)
}

func TestAutoSession(t *testing.T) {
	c := new(config)
	withConfig(t, c)

	c.Session = SessionConfig{Mode: "none", Port: 6000}
	_, ok, err := AutoSession()
	assert.False(t, ok)
	assert.NoError(t, err)

	c.Session = SessionConfig{Mode: "Server", Port: 6000}
	p, ok, err := AutoSession()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, link.RoleServer, p.Role)

	c.Session = SessionConfig{Mode: "client", Port: 6000}
	_, ok, err = AutoSession()
	assert.False(t, ok)
	assert.Equal(t, session.ErrPeerRequired, err)

	c.Session = SessionConfig{Mode: "relay", Port: 6000}
	_, _, err = AutoSession()
	assert.Equal(t, link.ErrInvalidRole, err)
}

func TestLoadDeviceProviders(t *testing.T) {
	c := new(config)
	c.Devices.VideoOut = &ProviderConfig{Provider: "Second", Config: map[string]interface{}{"k": "v"}}
	withConfig(t, c)

	p, err := LoadVideoOutProvider(&namedProvider{name: "first"}, &namedProvider{name: "second"})
	require.NoError(t, err)
	assert.Equal(t, "second", p.Name())
	assert.Equal(t, "v", p.(*namedProvider).cfg["k"])

	p, err = LoadVideoInProvider(&namedProvider{name: "first"})
	require.NoError(t, err)
	assert.Equal(t, "first", p.Name())

	c.Devices.AudioOut = &ProviderConfig{Provider: "missing"}
	_, err = LoadAudioOutProvider(&namedProvider{name: "first"}, &namedProvider{name: "second"})
	assert.True(t, errors.Is(err, ErrUnknownProvider))
	assert.Contains(t, err.Error(), "available: first, second")

	_, err = LoadAudioInProvider()
	assert.Equal(t, ErrNoProviders, err)
}

type failingProvider struct{ namedProvider }

func (p *failingProvider) Configure(config map[string]interface{}) error {
	return errors.New("bad device")
}

func TestProviderConfig_LoadConfigureError(t *testing.T) {
	c := &ProviderConfig{Provider: "broken"}
	_, err := c.Load(&failingProvider{namedProvider{name: "broken"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'broken'")
	assert.Contains(t, err.Error(), "bad device")
}

func TestLogConfig(t *testing.T) {
	c := &LogConfig{}
	assert.Equal(t, 1, c.stageWarns())
	w := c.fileWriter()
	assert.Equal(t, "./logs/"+Name+".log", w.Filename)
	assert.Equal(t, defaultLogMaxSize, w.MaxSize)
	assert.Equal(t, defaultLogMaxDays, w.MaxAge)
	assert.NotNil(t, c.newLogger())

	c = &LogConfig{StageWarns: 10, MaxSize: 5}
	assert.Equal(t, 10, c.stageWarns())
	assert.Equal(t, 5, c.fileWriter().MaxSize)

	cfg := new(config)
	cfg.Log.StageWarns = 4
	withConfig(t, cfg)
	assert.Equal(t, 4, SessionOptions().StageWarns)
}
