// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pipeline 实现每路媒体的四个流水线阶段：
//
//	Capture → TX RingBuffer → Transmit →(socket)→ Receive → RX RingBuffer → Playback
//
// 每个阶段独占一个 goroutine，阶段之间只通过单生产者单消费者的
// RingBuffer 交换帧，每轮循环检查一次会话的运行标志。
package pipeline

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/stats"
	"github.com/cnotch/xlog"
	"github.com/kelindar/rate"
	"golang.org/x/sync/errgroup"
)

// DefaultBackoff 队列空时的退避间隔
const DefaultBackoff = 2 * time.Millisecond

// 错误定义
var (
	// ErrPeerClosed 对端关闭了连接
	ErrPeerClosed = errors.New("pipeline: peer closed the stream")
)

// Control 阶段观察到的会话控制面
type Control interface {
	// Running 会话是否仍在运行，每轮循环检查一次
	Running() bool
	// Abort 清除运行标志并记录原因，只有第一个原因被保留
	Abort(err error)
}

// Stage 流水线阶段
type Stage interface {
	Name() string
	// Priority 建议的实时优先级，数值越大越优先
	Priority() int
	// Run 运行直到会话停止或本阶段无法继续
	Run(ctl Control) error
}

// Options 阶段公共参数
type Options struct {
	Backoff  time.Duration // 队列空时的退避
	Priority int           // 建议优先级
	Warns    int           // 每秒最多输出的告警数，<=0 为 1
	Stats    *stats.Stream
	Logger   *xlog.Logger
}

type base struct {
	kind     av.Kind
	name     string
	backoff  time.Duration
	priority int
	stats    *stats.Stream
	logger   *xlog.Logger
	warns    *rate.Limiter // 热路径告警限流
}

func newBase(kind av.Kind, name string, opts Options) base {
	if opts.Warns <= 0 {
		opts.Warns = 1
	}
	b := base{
		kind:     kind,
		name:     kind.String() + "-" + name,
		backoff:  opts.Backoff,
		priority: opts.Priority,
		stats:    opts.Stats,
		logger:   opts.Logger,
		warns:    rate.New(opts.Warns, time.Second),
	}
	if b.backoff <= 0 {
		b.backoff = DefaultBackoff
	}
	if b.stats == nil {
		b.stats = stats.NewStream(nil)
	}
	if b.logger == nil {
		b.logger = xlog.L()
	}
	b.logger = b.logger.With(xlog.Fields(xlog.F("stage", b.name)))
	return b
}

func (b *base) Name() string  { return b.name }
func (b *base) Priority() int { return b.priority }

// Stats 阶段计数
func (b *base) Stats() *stats.Stream { return b.stats }

// warnf 限流告警，避免丢帧时刷屏
func (b *base) warnf(format string, args ...interface{}) {
	if !b.warns.Limit() {
		b.logger.Warnf(format, args...)
	}
}

// Go 在 g 中启动阶段。
// 阶段 panic 被恢复、记录并转为会话中止；realtime 时尝试提升线程优先级。
func Go(g *errgroup.Group, ctl Control, st Stage, realtime bool, logger *xlog.Logger) {
	if logger == nil {
		logger = xlog.L()
	}
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("stage %s panic；r = %v \n %s", st.Name(), r, debug.Stack())
				err = fmt.Errorf("pipeline: stage %s panic: %v", st.Name(), r)
				ctl.Abort(err)
			}
		}()

		if realtime {
			if perr := elevate(st.Priority()); perr != nil && logger.LevelEnabled(xlog.DebugLevel) {
				logger.Debugf("stage %s keeps default priority: %v", st.Name(), perr)
			}
		}

		logger.Debugf("stage %s started", st.Name())
		err = st.Run(ctl)
		logger.Debugf("stage %s exited", st.Name())
		return
	})
}
