// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"errors"
	"strings"

	"github.com/cnotch/avchat/av"
	"github.com/pixelbender/go-sdp/sdp"
)

// ErrNoMedia sdp 中没有可识别的媒体描述
var ErrNoMedia = errors.New("sdp: no audio or video media")

// ParseMeta 从 sdp 中解析音视频参数；未描述的一路保持原值
func ParseMeta(rawsdp string, video *av.VideoMeta, audio *av.AudioMeta) error {
	sess, err := sdp.ParseString(rawsdp)
	if err != nil {
		return err
	}

	found := false
	for _, media := range sess.Media {
		if len(media.Format) == 0 {
			continue
		}
		switch media.Type {
		case "video":
			if video != nil {
				parseVideoMeta(media.Format[0], video)
				found = true
			}
		case "audio":
			if audio != nil {
				parseAudioMeta(media.Format[0], audio)
				found = true
			}
		}
	}
	if !found {
		return ErrNoMedia
	}
	return nil
}

func parseAudioMeta(m *sdp.Format, audio *av.AudioMeta) {
	audio.Codec = strings.ToUpper(m.Name)
	audio.SampleSize = 16
	audio.Channels = 1
	if audio.SampleRate == 0 {
		audio.SampleRate = av.DefaultSampleRate
	}
	if m.ClockRate > 0 {
		audio.SampleRate = m.ClockRate
	}
	if m.Channels > 0 {
		audio.Channels = m.Channels
	}
	switch audio.Codec {
	case "L8":
		audio.SampleSize = 8
	case "L24":
		audio.SampleSize = 24
	}
}

func parseVideoMeta(m *sdp.Format, video *av.VideoMeta) {
	switch strings.ToUpper(m.Name) {
	case "JPEG", "MJPEG":
		video.Codec = "JPEG"
	default:
		video.Codec = strings.ToUpper(m.Name)
	}
}
