// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"sync/atomic"
)

// Counter 流水线计数项
type Counter int

// 计数项定义
const (
	Captured   Counter = iota // 采集到
	CapDropped                // 发送队列满丢弃
	Sent                      // 完整发出
	TxRejected                // 尺寸不符拒发
	Received                  // 完整收到
	RxDropped                 // 接收队列满丢弃
	Played                    // 交给播放
	Stalls                    // 抖动缓冲等待次数
	counterCount
)

var counterNames = [counterCount]string{
	"captured", "cap_dropped", "sent", "tx_rejected",
	"received", "rx_dropped", "played", "stalls",
}

// String 计数项名称
func (c Counter) String() string {
	if c < 0 || c >= counterCount {
		return "unknow"
	}
	return counterNames[c]
}

// Counters 所有计数项
func Counters() []Counter {
	cs := make([]Counter, counterCount)
	for i := range cs {
		cs[i] = Counter(i)
	}
	return cs
}

// 全局变量，汇总所有会话
var (
	AudioTotals = NewStream(nil)
	VideoTotals = NewStream(nil)
)

// StreamSample 单路流计数采样
type StreamSample struct {
	Captured   int64 `json:"captured"`
	CapDropped int64 `json:"capdropped"`
	Sent       int64 `json:"sent"`
	TxRejected int64 `json:"txrejected"`
	Received   int64 `json:"received"`
	RxDropped  int64 `json:"rxdropped"`
	Played     int64 `json:"played"`
	Stalls     int64 `json:"stalls"`
}

// Stream 单路流（音频或视频）的计数，可挂到父计数上汇总
type Stream struct {
	counters [counterCount]int64
	parent   *Stream
}

// NewStream 创建流计数，parent 可为 nil
func NewStream(parent *Stream) *Stream {
	return &Stream{parent: parent}
}

// Inc 计数加一
func (s *Stream) Inc(c Counter) {
	atomic.AddInt64(&s.counters[c], 1)
	if s.parent != nil {
		s.parent.Inc(c)
	}
}

// Get 获取计数
func (s *Stream) Get(c Counter) int64 {
	return atomic.LoadInt64(&s.counters[c])
}

// GetSample 获取当前时点采样
func (s *Stream) GetSample() StreamSample {
	return StreamSample{
		Captured:   s.Get(Captured),
		CapDropped: s.Get(CapDropped),
		Sent:       s.Get(Sent),
		TxRejected: s.Get(TxRejected),
		Received:   s.Get(Received),
		RxDropped:  s.Get(RxDropped),
		Played:     s.Get(Played),
		Stalls:     s.Get(Stalls),
	}
}
