// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"errors"
	"io"
	"os"
	"strconv"

	"github.com/cnotch/avchat/av"
)

// sox 原始 PCM 参数：有符号 16bit 单声道小端
func soxArgs(meta av.AudioMeta) []string {
	return []string{
		"-q",
		"-t", "raw",
		"-b", strconv.Itoa(meta.SampleSize),
		"-c", strconv.Itoa(meta.Channels),
		"-e", "signed-integer",
		"-r", strconv.Itoa(meta.SampleRate),
		"-",
	}
}

func soxEnv(device string) []string {
	if device == "" {
		return nil
	}
	return []string{"AUDIODEV=" + device}
}

// SoxInput 通过 SoX 的 rec 命令采集麦克风
type SoxInput struct {
	program string
	device  string
}

// Name 提供者名称
func (p *SoxInput) Name() string { return "sox" }

// Configure 配置；program 默认 rec，device 为空使用系统默认设备
func (p *SoxInput) Configure(config map[string]interface{}) error {
	p.program = getString(config, "program", "rec")
	p.device = getString(config, "device", "")
	return nil
}

// OpenAudioIn 启动 rec 进程
func (p *SoxInput) OpenAudioIn(meta av.AudioMeta) (av.AudioSource, error) {
	if meta.Validate() != nil {
		return nil, ErrUnsupportedFormat
	}
	if p.program == "" {
		p.Configure(nil)
	}
	proc, err := startProcess(p.program, soxArgs(meta), soxEnv(p.device), false, true)
	if err != nil {
		return nil, err
	}
	return &pcmReader{process: proc}, nil
}

// pcmReader 每次读满一个音频包；进程退出时返回短读
type pcmReader struct {
	*process
}

func (r *pcmReader) ReadPacket(p []byte) (int, error) {
	n, err := io.ReadFull(r.stdout, p)
	if err == io.ErrUnexpectedEOF || errors.Is(err, os.ErrClosed) {
		err = io.EOF // 进程退出或已关闭
	}
	return n, err
}

// SoxOutput 通过 SoX 的 play 命令播放
type SoxOutput struct {
	program string
	device  string
}

// Name 提供者名称
func (p *SoxOutput) Name() string { return "sox" }

// Configure 配置；program 默认 play
func (p *SoxOutput) Configure(config map[string]interface{}) error {
	p.program = getString(config, "program", "play")
	p.device = getString(config, "device", "")
	return nil
}

// OpenAudioOut 启动 play 进程
func (p *SoxOutput) OpenAudioOut(meta av.AudioMeta) (av.AudioSink, error) {
	if meta.Validate() != nil {
		return nil, ErrUnsupportedFormat
	}
	if p.program == "" {
		p.Configure(nil)
	}
	proc, err := startProcess(p.program, soxArgs(meta), soxEnv(p.device), true, false)
	if err != nil {
		return nil, err
	}
	return &pcmWriter{process: proc}, nil
}

type pcmWriter struct {
	*process
}

func (w *pcmWriter) PlayPacket(p []byte) error {
	_, err := w.stdin.Write(p)
	return err
}
