// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"math/bits"
	"sync"
)

// 池化缓冲的尺寸等级: 2^minClass .. 2^maxClass 字节
const (
	minClass = 9  // 512B
	maxClass = 20 // 1MB
)

var framePools [maxClass - minClass + 1]sync.Pool

// Frame 独占所有权的媒体帧缓冲。
// 同一时刻只有一个 goroutine 持有 Frame；入列时生产者交出所有权，
// 出列时消费者获得所有权，最后的持有者负责 Release。
type Frame struct {
	data  []byte
	class int // 池等级，-1 表示非池化
}

// NewFrame 分配一个长度为 size 的帧
func NewFrame(size int) *Frame {
	if size < 0 {
		size = 0
	}

	class := sizeClass(size)
	if class < 0 {
		return &Frame{data: make([]byte, size), class: -1}
	}

	if v := framePools[class].Get(); v != nil {
		buf := v.([]byte)
		return &Frame{data: buf[:size], class: class}
	}
	return &Frame{data: make([]byte, size, 1<<(class+minClass)), class: class}
}

// WrapFrame 接管 p 的所有权构造帧，调用者之后不得再访问 p
func WrapFrame(p []byte) *Frame {
	return &Frame{data: p, class: -1}
}

// CopyFrame 复制 p 构造新帧
func CopyFrame(p []byte) *Frame {
	f := NewFrame(len(p))
	copy(f.data, p)
	return f
}

// Bytes 返回帧数据，Release 后返回 nil
func (f *Frame) Bytes() []byte {
	return f.data
}

// Len 帧长度
func (f *Frame) Len() int {
	return len(f.data)
}

// Release 释放帧缓冲；重复调用是安全的
func (f *Frame) Release() {
	if f.data == nil {
		return
	}
	buf := f.data
	f.data = nil
	if f.class >= 0 {
		framePools[f.class].Put(buf[:cap(buf)])
	}
}

func sizeClass(size int) int {
	if size > 1<<maxClass {
		return -1
	}
	if size <= 1<<minClass {
		return 0
	}
	return bits.Len(uint(size-1)) - minClass
}
