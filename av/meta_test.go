// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAudioMeta(t *testing.T) {
	m := DefaultAudioMeta()
	assert.NoError(t, m.Validate())
	assert.Equal(t, 1764, m.PacketBytes())
	assert.Equal(t, 882, m.SamplesPerPacket())
	assert.Equal(t, 20*time.Millisecond, m.PacketDuration())

	m.Channels = 2
	assert.Equal(t, 3528, m.PacketBytes())

	// 非整千的采样率不能截断
	m = AudioMeta{SampleRate: 22050, SampleSize: 16, Channels: 1, PacketMs: 10}
	assert.Equal(t, 220, m.SamplesPerPacket())
	assert.Equal(t, 440, m.PacketBytes())
	m.SampleRate = 11025
	assert.Equal(t, 110, m.SamplesPerPacket())

	m.SampleSize = 12
	assert.Equal(t, ErrInvalidMeta, m.Validate())
}

func TestVideoMeta(t *testing.T) {
	assert.Equal(t, time.Second/30, VideoMeta{}.FramePeriod())
	assert.Equal(t, 40*time.Millisecond, VideoMeta{FrameRate: 25}.FramePeriod())
}

func TestKind(t *testing.T) {
	assert.Equal(t, "audio", KindAudio.String())
	assert.Equal(t, "video", KindVideo.String())
	assert.Equal(t, "unknow", Kind(9).String())
}
