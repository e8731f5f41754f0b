// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/xlog"
)

// ErrJPEGTooLarge 单帧超过上限，多半是输入不是 MJPEG
var ErrJPEGTooLarge = errors.New("device: jpeg frame too large")

const defaultMaxJPEG = 4 * 1024 * 1024

// ffmpeg 的 -q:v 取值 2-31，数值越小质量越高
func mjpegQScale(quality int) int {
	if quality <= 0 {
		quality = av.DefaultQuality
	}
	if quality > 100 {
		quality = 100
	}
	return 31 - quality*29/100
}

// FfmpegInput 通过 ffmpeg 采集 v4l2 摄像头并压缩成 MJPEG
type FfmpegInput struct {
	program string
	format  string
	device  string
	extra   []string
}

// Name 提供者名称
func (p *FfmpegInput) Name() string { return "ffmpeg" }

// Configure 配置：program、format(v4l2)、device(/dev/video0)、args(追加的输入参数)
func (p *FfmpegInput) Configure(config map[string]interface{}) error {
	p.program = getString(config, "program", "ffmpeg")
	p.format = getString(config, "format", "v4l2")
	p.device = getString(config, "device", "/dev/video0")
	p.extra = getStrings(config, "args")
	return nil
}

func (p *FfmpegInput) args(meta av.VideoMeta) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", p.format}
	if meta.FrameRate > 0 {
		args = append(args, "-framerate", strconv.FormatFloat(meta.FrameRate, 'f', -1, 64))
	}
	if meta.Width > 0 && meta.Height > 0 {
		args = append(args, "-video_size", strconv.Itoa(meta.Width)+"x"+strconv.Itoa(meta.Height))
	}
	args = append(args, p.extra...)
	args = append(args, "-i", p.device,
		"-f", "mjpeg", "-q:v", strconv.Itoa(mjpegQScale(meta.Quality)), "-")
	return args
}

// OpenVideoIn 启动 ffmpeg 进程
func (p *FfmpegInput) OpenVideoIn(meta av.VideoMeta) (av.VideoSource, error) {
	if !isJPEG(meta.Codec) {
		return nil, ErrUnsupportedFormat
	}
	if p.program == "" {
		p.Configure(nil)
	}
	proc, err := startProcess(p.program, p.args(meta), nil, false, true)
	if err != nil {
		return nil, err
	}
	return &mjpegReader{process: proc, splitter: newJPEGSplitter(proc.stdout, defaultMaxJPEG)}, nil
}

type mjpegReader struct {
	*process
	splitter *jpegSplitter
}

// ReadFrame 进程退出时返回空帧
func (r *mjpegReader) ReadFrame() ([]byte, error) {
	p, err := r.splitter.ReadFrame()
	if err == io.EOF || err == io.ErrUnexpectedEOF || errors.Is(err, os.ErrClosed) {
		return nil, nil
	}
	return p, err
}

// jpegSplitter 从连续的 MJPEG 字节流中按 SOI/EOI 标记切出单帧
type jpegSplitter struct {
	r   *bufio.Reader
	max int
}

func newJPEGSplitter(r io.Reader, max int) *jpegSplitter {
	return &jpegSplitter{r: bufio.NewReaderSize(r, 64*1024), max: max}
}

func (s *jpegSplitter) ReadFrame() ([]byte, error) {
	// 寻找 SOI
	var prev byte
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if prev == 0xff && b == 0xd8 {
			break
		}
		prev = b
	}

	frame := make([]byte, 2, 32*1024)
	frame[0], frame[1] = 0xff, 0xd8
	prev = 0
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		frame = append(frame, b)
		if prev == 0xff && b == 0xd9 {
			return frame, nil
		}
		if len(frame) > s.max {
			return nil, ErrJPEGTooLarge
		}
		prev = b
	}
}

// FfplayOutput 通过 ffplay 显示 MJPEG 帧
type FfplayOutput struct {
	program string
	title   string
}

// Name 提供者名称
func (p *FfplayOutput) Name() string { return "ffplay" }

// Configure 配置：program、title
func (p *FfplayOutput) Configure(config map[string]interface{}) error {
	p.program = getString(config, "program", "ffplay")
	p.title = getString(config, "title", "avchat")
	return nil
}

// OpenVideoOut 启动 ffplay 进程
func (p *FfplayOutput) OpenVideoOut(meta av.VideoMeta) (av.VideoSink, error) {
	if !isJPEG(meta.Codec) {
		return nil, ErrUnsupportedFormat
	}
	if p.program == "" {
		p.Configure(nil)
	}
	args := []string{"-hide_banner", "-loglevel", "error",
		"-fflags", "nobuffer", "-window_title", p.title,
		"-f", "mjpeg", "-i", "-"}
	proc, err := startProcess(p.program, args, nil, true, false)
	if err != nil {
		return nil, err
	}
	return &mjpegWriter{process: proc}, nil
}

type mjpegWriter struct {
	*process
	broken int32
}

// ShowFrame 写入失败只记录一次，之后的帧丢弃
func (w *mjpegWriter) ShowFrame(p []byte) {
	if atomic.LoadInt32(&w.broken) == 1 {
		return
	}
	if _, err := w.stdin.Write(p); err != nil {
		atomic.StoreInt32(&w.broken, 1)
		xlog.L().Warnf("%s: display stopped: %v", w.name, err)
	}
}
