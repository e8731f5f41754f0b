// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// ErrRingSize 环形队列容量必须是 2 的幂且不小于 2
var ErrRingSize = errors.New("ring buffer size must be a power of two >= 2")

// RingBuffer 单生产者/单消费者无锁环形队列。
//
// 只能有一个 goroutine 调用 Push，另一个 goroutine 调用 Pop。
// head 由生产者推进，tail 由消费者推进；槽位的写入通过 head 的
// store 发布，消费者 load head 之后才读取槽位。
// 队列满时 Push 立即返回 false（丢弃最新帧的策略由调用者执行），
// 可用容量为 Cap()-1。
type RingBuffer struct {
	_     cpu.CacheLinePad
	head  atomic.Uint32 // 生产者写入位置
	_     cpu.CacheLinePad
	tail  atomic.Uint32 // 消费者读取位置
	_     cpu.CacheLinePad
	mask  uint32
	slots []*Frame
}

// NewRingBuffer 创建容量为 size 的环形队列
func NewRingBuffer(size int) (*RingBuffer, error) {
	if size < 2 || size&(size-1) != 0 || size > 1<<30 {
		return nil, ErrRingSize
	}
	return &RingBuffer{
		mask:  uint32(size - 1),
		slots: make([]*Frame, size),
	}, nil
}

// MustRingBuffer 创建环形队列，容量非法时 panics
func MustRingBuffer(size int) *RingBuffer {
	rb, err := NewRingBuffer(size)
	if err != nil {
		panic(err)
	}
	return rb
}

// Push 入列；队列满时返回 false，f 的所有权仍归调用者
func (rb *RingBuffer) Push(f *Frame) bool {
	h := rb.head.Load()
	next := (h + 1) & rb.mask
	if next == rb.tail.Load() {
		return false // full
	}
	rb.slots[h] = f
	rb.head.Store(next)
	return true
}

// Pop 出列；队列空时返回 false，成功时调用者获得帧的所有权
func (rb *RingBuffer) Pop() (*Frame, bool) {
	t := rb.tail.Load()
	if t == rb.head.Load() {
		return nil, false // empty
	}
	f := rb.slots[t]
	rb.slots[t] = nil
	rb.tail.Store((t + 1) & rb.mask)
	return f, true
}

// Len 当前占用数，并发访问时只是参考值
func (rb *RingBuffer) Len() int {
	h := rb.head.Load()
	t := rb.tail.Load()
	return int((h - t + rb.mask + 1) & rb.mask)
}

// Cap 槽位数 N
func (rb *RingBuffer) Cap() int {
	return len(rb.slots)
}

// Drain 由消费者一侧调用（或在生产者与消费者都已退出后），
// 释放队列中剩余的帧，返回释放的数量
func (rb *RingBuffer) Drain() int {
	n := 0
	for {
		f, ok := rb.Pop()
		if !ok {
			return n
		}
		if f != nil {
			f.Release()
		}
		n++
	}
}
