// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"sync"
	"time"

	"github.com/cnotch/avchat/av"
)

// ToneInput 合成正弦音，用于无声卡环境的联调
type ToneInput struct {
	freq      float64
	amplitude float64
}

// Name 提供者名称
func (p *ToneInput) Name() string { return "tone" }

// Configure 配置：frequency(Hz，默认 440)、volume(0-100，默认 30)
func (p *ToneInput) Configure(config map[string]interface{}) error {
	freq, err := getInt(config, "frequency", 440)
	if err != nil {
		return err
	}
	vol, err := getInt(config, "volume", 30)
	if err != nil {
		return err
	}
	if vol < 0 {
		vol = 0
	} else if vol > 100 {
		vol = 100
	}
	p.freq = float64(freq)
	p.amplitude = float64(vol) / 100 * math.MaxInt16
	return nil
}

// OpenAudioIn 只支持 16bit 采样
func (p *ToneInput) OpenAudioIn(meta av.AudioMeta) (av.AudioSource, error) {
	if meta.Validate() != nil || meta.SampleSize != 16 {
		return nil, ErrUnsupportedFormat
	}
	if p.freq == 0 {
		p.Configure(nil)
	}
	return &toneSource{
		meta:      meta,
		step:      2 * math.Pi * p.freq / float64(meta.SampleRate),
		amplitude: p.amplitude,
		closed:    make(chan struct{}),
	}, nil
}

// toneSource 按包时长实时产生数据，与真实声卡的阻塞读一致
type toneSource struct {
	meta      av.AudioMeta
	step      float64
	amplitude float64
	phase     float64
	next      time.Time
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *toneSource) ReadPacket(p []byte) (int, error) {
	now := time.Now()
	if s.next.IsZero() {
		s.next = now
	}
	s.next = s.next.Add(s.meta.PacketDuration())
	if d := s.next.Sub(now); d > 0 {
		select {
		case <-s.closed:
			return 0, io.EOF
		case <-time.After(d):
		}
	} else {
		select {
		case <-s.closed:
			return 0, io.EOF
		default:
		}
	}

	frameBytes := s.meta.BytesPerSample()
	n := len(p) / frameBytes * frameBytes
	for i := 0; i < n; i += frameBytes {
		v := int16(s.amplitude * math.Sin(s.phase))
		for c := 0; c < s.meta.Channels; c++ {
			binary.LittleEndian.PutUint16(p[i+c*2:], uint16(v))
		}
		s.phase += s.step
		if s.phase > 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
	return n, nil
}

func (s *toneSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// PatternInput 合成移动色条的测试图像，编码为 JPEG
type PatternInput struct {
	width  int
	height int
}

// Name 提供者名称
func (p *PatternInput) Name() string { return "pattern" }

// Configure 配置：width、height 覆盖会话的视频尺寸
func (p *PatternInput) Configure(config map[string]interface{}) (err error) {
	if p.width, err = getInt(config, "width", 0); err != nil {
		return
	}
	p.height, err = getInt(config, "height", 0)
	return
}

// OpenVideoIn 创建图像发生器
func (p *PatternInput) OpenVideoIn(meta av.VideoMeta) (av.VideoSource, error) {
	if !isJPEG(meta.Codec) {
		return nil, ErrUnsupportedFormat
	}
	w, h := meta.Width, meta.Height
	if p.width > 0 && p.height > 0 {
		w, h = p.width, p.height
	}
	if w <= 0 || h <= 0 {
		w, h = av.DefaultWidth, av.DefaultHeight
	}
	q := meta.Quality
	if q <= 0 || q > 100 {
		q = av.DefaultQuality
	}
	return &patternSource{
		img:     image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420),
		quality: q,
	}, nil
}

var patternBars = []color.YCbCr{
	{Y: 235, Cb: 128, Cr: 128}, // 白
	{Y: 210, Cb: 16, Cr: 146},  // 黄
	{Y: 170, Cb: 166, Cr: 16},  // 青
	{Y: 145, Cb: 54, Cr: 34},   // 绿
	{Y: 106, Cb: 202, Cr: 222}, // 品红
	{Y: 81, Cb: 90, Cr: 240},   // 红
	{Y: 41, Cb: 240, Cr: 110},  // 蓝
	{Y: 16, Cb: 128, Cr: 128},  // 黑
}

type patternSource struct {
	mu      sync.Mutex
	img     *image.YCbCr
	quality int
	seq     int
	closed  bool
	buf     bytes.Buffer
}

// ReadFrame 关闭后返回空帧
func (s *patternSource) ReadFrame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil
	}

	s.draw()
	s.seq++
	s.buf.Reset()
	if err := jpeg.Encode(&s.buf, s.img, &jpeg.Options{Quality: s.quality}); err != nil {
		return nil, err
	}
	return append([]byte(nil), s.buf.Bytes()...), nil
}

func (s *patternSource) draw() {
	b := s.img.Bounds()
	w := b.Dx()
	barw := (w + len(patternBars) - 1) / len(patternBars)
	shift := s.seq * 4
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := patternBars[((x+shift)%w)/barw%len(patternBars)]
			s.img.Y[s.img.YOffset(x, y)] = c.Y
			if x%2 == 0 && y%2 == 0 {
				ci := s.img.COffset(x, y)
				s.img.Cb[ci] = c.Cb
				s.img.Cr[ci] = c.Cr
			}
		}
	}
}

func (s *patternSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// DiscardOutput 丢弃全部音视频，只用于测试和无头部署
type DiscardOutput struct{}

// Name 提供者名称
func (p *DiscardOutput) Name() string { return "discard" }

// Configure 无配置项
func (p *DiscardOutput) Configure(config map[string]interface{}) error { return nil }

// OpenAudioOut 打开音频丢弃端
func (p *DiscardOutput) OpenAudioOut(meta av.AudioMeta) (av.AudioSink, error) {
	return discardSink{}, nil
}

// OpenVideoOut 打开视频丢弃端
func (p *DiscardOutput) OpenVideoOut(meta av.VideoMeta) (av.VideoSink, error) {
	return discardSink{}, nil
}

type discardSink struct{}

func (discardSink) PlayPacket(p []byte) error { return nil }
func (discardSink) ShowFrame(p []byte)        {}
