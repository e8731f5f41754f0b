// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package avwire 实现点对点音视频流的线路分帧协议。
//
// 视频: [uint32 大端长度 L][L 字节压缩帧]，循环；
// 音频: 固定尺寸的原始 PCM 块，无前缀，背靠背发送。
//
// 解帧器可在非阻塞读取下工作：底层 Reader 返回临时错误时，
// 已累积的状态保留，下次调用从断点继续。
package avwire

import (
	"errors"
	"fmt"
)

// HeaderSize 视频帧长度前缀的字节数
const HeaderSize = 4

// DefaultMaxFrameSize 视频帧长度上限，超过视为失步
const DefaultMaxFrameSize = 8 << 20

// 错误定义
var (
	// ErrFrameTooLarge 视频帧长度超过上限，连接无法恢复同步
	ErrFrameTooLarge = errors.New("avwire: video frame length exceeds limit")
	// ErrChunkSize 音频块尺寸与会话约定不符
	ErrChunkSize = errors.New("avwire: audio chunk size mismatch")
	// ErrShortChunk 流结束时残留不足一块的音频数据，已丢弃
	ErrShortChunk = errors.New("avwire: short audio chunk discarded")
)

func frameTooLarge(n uint32, limit int) error {
	return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, limit)
}
