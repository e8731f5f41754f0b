// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/network/link"
	"github.com/cnotch/queue"
	"github.com/cnotch/xlog"
)

// DeviceOpener 为新会话打开采集/播放设备
type DeviceOpener func(opts Options) (*av.Devices, error)

// Orchestrator 会话编排器，同一时刻最多一个会话。
//
// 状态: Idle → Starting → Running → Stopping → Idle。
// Starting 建立两条连接，失败回到 Idle；Starting 期间 Stop 会取消建立。
type Orchestrator struct {
	opts    Options
	devices DeviceOpener
	events  *queue.SyncQueue
	logger  *xlog.Logger

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc // Starting 期间有效
	startDone chan struct{}      // Starting 结束时关闭
	session   *Session
	message   string
}

// NewOrchestrator 创建编排器
func NewOrchestrator(opts Options, devices DeviceOpener, options ...Option) *Orchestrator {
	o := &Orchestrator{
		opts:    opts.normalize(),
		devices: devices,
		state:   StateIdle,
		message: "idle",
	}
	for _, option := range options {
		option.apply(o)
	}
	if o.logger == nil {
		o.logger = xlog.L()
	}
	return o
}

// Options 会话参数
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Start 同步建立会话，返回时会话已运行或已回到 Idle
func (o *Orchestrator) Start(ctx context.Context, params Params) error {
	ctx, err := o.begin(ctx, params)
	if err != nil {
		return err
	}
	return o.establish(ctx, params)
}

// StartAsync 校验参数并进入 Starting 后立即返回，连接在后台建立。
// 参数错误和忙碌错误同步返回。
func (o *Orchestrator) StartAsync(params Params) error {
	ctx, err := o.begin(context.Background(), params)
	if err != nil {
		return err
	}
	go o.establish(ctx, params)
	return nil
}

func (o *Orchestrator) begin(ctx context.Context, params Params) (context.Context, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return nil, ErrBusy
	}

	ctx, o.cancel = context.WithCancel(ctx)
	o.startDone = make(chan struct{})
	o.setState(StateStarting, "", nil,
		fmt.Sprintf("starting as %s on port %d", params.Role, params.Port))
	return ctx, nil
}

func (o *Orchestrator) establish(ctx context.Context, params Params) (err error) {
	defer func() {
		if err == nil {
			return
		}
		o.mu.Lock()
		o.cancel()
		o.cancel = nil
		o.setState(StateIdle, "", err, fmt.Sprintf("start failed: %v", err))
		close(o.startDone)
		o.mu.Unlock()
	}()

	pair, err := link.Establish(ctx, params.Role, params.ListenHost, params.Peer, params.Port, o.opts.DialTimeout)
	if err != nil {
		return err
	}

	devs, err := o.openDevices()
	if err != nil {
		pair.Close()
		return fmt.Errorf("session: open devices: %w", err)
	}

	s, err := newSession(params, o.opts, pair, devs, o.logger)
	if err != nil {
		pair.Close()
		devs.CloseSources()
		devs.CloseSinks()
		return err
	}
	s.onStopping = o.stopping
	s.onStopped = o.stopped

	o.mu.Lock()
	if ctx.Err() != nil { // 连接建立的同时收到了 Stop
		o.mu.Unlock()
		pair.Close()
		devs.CloseSources()
		devs.CloseSinks()
		return ErrCanceled
	}
	o.cancel()
	o.cancel = nil
	o.session = s
	s.start()
	o.setState(StateRunning, s.id, nil, "running")
	close(o.startDone)
	o.mu.Unlock()

	if o.opts.MonitorPeriod > 0 {
		startMonitor(s, o.opts.MonitorPeriod)
	}
	return nil
}

func (o *Orchestrator) openDevices() (*av.Devices, error) {
	if o.devices == nil {
		return nil, fmt.Errorf("no device opener")
	}
	devs, err := o.devices(o.opts)
	if err != nil {
		return nil, err
	}
	if devs.AudioIn == nil || devs.AudioOut == nil || devs.VideoIn == nil || devs.VideoOut == nil {
		devs.CloseSources()
		devs.CloseSinks()
		return nil, fmt.Errorf("incomplete device set")
	}
	return devs, nil
}

// Stop 停止会话。
// Starting 时取消连接建立；Running 时清除运行标志、汇合全部阶段并释放资源。
// 返回时编排器已回到 Idle，返回值为会话终止的原因。
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	switch o.state {
	case StateIdle:
		o.mu.Unlock()
		return ErrNotRunning
	case StateStarting:
		o.cancel()
		done := o.startDone
		o.mu.Unlock()
		<-done
		// 建立恰好完成时会话已经在运行
		if o.State() == StateRunning {
			return o.Stop()
		}
		return nil
	case StateRunning:
		s := o.session
		o.setState(StateStopping, s.id, nil, "stopping")
		o.mu.Unlock()
		return s.Stop()
	default: // Stopping
		s := o.session
		o.mu.Unlock()
		<-s.Done()
		return s.Err()
	}
}

// stopping 会话因任意原因清除运行标志时的回调
func (o *Orchestrator) stopping(s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != s || o.state != StateRunning {
		return
	}
	msg := "stopping"
	if err := s.Err(); err != nil {
		msg = fmt.Sprintf("stopping: %v", err)
	}
	o.setState(StateStopping, s.id, s.Err(), msg)
}

// stopped 会话收尾完成的回调，在 Session.Done 关闭前调用
func (o *Orchestrator) stopped(s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != s {
		return
	}
	o.session = nil
	err := s.Err()
	msg := "stopped"
	if err != nil {
		msg = fmt.Sprintf("stopped: %v", err)
	}
	o.setState(StateIdle, s.id, err, msg)
}

// Session 当前会话，无会话时返回 nil
func (o *Orchestrator) Session() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// State 当前状态
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status 状态快照
func (o *Orchestrator) Status() *Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := &Status{
		State:   o.state.String(),
		Message: o.message,
	}
	if o.session != nil {
		st.Session = o.session.Info()
	}
	return st
}

// Close 停止会话；会话的监视任务随会话结束
func (o *Orchestrator) Close() error {
	if o.State() != StateIdle {
		o.Stop()
	}
	return nil
}

// setState 调用者需持有 o.mu
func (o *Orchestrator) setState(state State, sid string, err error, msg string) {
	o.state = state
	o.message = msg
	if o.events != nil {
		o.events.Push(&Event{
			Time:    time.Now(),
			State:   state,
			Session: sid,
			Message: msg,
			Err:     err,
		})
	}
}

// Option 配置 Orchestrator 的选项接口
type Option interface {
	apply(*Orchestrator)
}

type optionFunc func(*Orchestrator)

func (f optionFunc) apply(o *Orchestrator) {
	f(o)
}

// Events 状态变化事件推送到 q
func Events(q *queue.SyncQueue) Option {
	return optionFunc(func(o *Orchestrator) {
		o.events = q
	})
}

// Logger 设置日志
func Logger(l *xlog.Logger) Option {
	return optionFunc(func(o *Orchestrator) {
		o.logger = l
	})
}
