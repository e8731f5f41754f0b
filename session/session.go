// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package session 管理点对点音视频会话：建立两条连接，
// 启停八个流水线阶段，并实现停止协议。
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/media"
	"github.com/cnotch/avchat/network/link"
	"github.com/cnotch/avchat/network/socket/stream"
	"github.com/cnotch/avchat/pipeline"
	"github.com/cnotch/avchat/stats"
	"github.com/cnotch/xlog"
	"golang.org/x/sync/errgroup"
)

// 错误定义
var (
	ErrBusy         = errors.New("session: a session is already active")
	ErrNotRunning   = errors.New("session: no active session")
	ErrCanceled     = errors.New("session: start canceled")
	ErrPeerRequired = errors.New("session: peer address is required in client role")
)

// mediaPath 一路媒体的队列、连接与计数
type mediaPath struct {
	tx    *media.RingBuffer
	rx    *media.RingBuffer
	conn  *stream.Conn
	stats *stats.Stream
	flow  stats.Flow
}

func newMediaPath(txSize, rxSize int, stotal *stats.Stream, ftotal stats.Flow) (*mediaPath, error) {
	tx, err := media.NewRingBuffer(txSize)
	if err != nil {
		return nil, fmt.Errorf("tx ring: %w", err)
	}
	rx, err := media.NewRingBuffer(rxSize)
	if err != nil {
		return nil, fmt.Errorf("rx ring: %w", err)
	}
	return &mediaPath{
		tx:    tx,
		rx:    rx,
		stats: stats.NewStream(stotal),
		flow:  stats.NewChildFlow(ftotal),
	}, nil
}

func (p *mediaPath) status() *StreamStatus {
	return &StreamStatus{
		Stats:    p.stats.GetSample(),
		Flow:     p.flow.GetSample(),
		TxQueued: p.tx.Len(),
		RxQueued: p.rx.Len(),
	}
}

// Session 一个活动会话。
// 会话拥有运行标志、四个队列、两条连接与设备，被八个阶段共享。
type Session struct {
	id      string
	params  Params
	opts    Options
	startOn time.Time
	logger  *xlog.Logger

	running int32
	abortc  chan struct{}
	abortMu sync.Mutex
	aborted bool
	cause   error

	audio   *mediaPath
	video   *mediaPath
	devices *av.Devices
	stages  errgroup.Group

	teardownOnce sync.Once
	stopped      chan struct{}
	onStopping   func(s *Session)
	onStopped    func(s *Session)
}

func newSession(params Params, opts Options, pair *link.Pair, devices *av.Devices, logger *xlog.Logger) (*Session, error) {
	id := NewID()
	s := &Session{
		id:      id,
		params:  params,
		opts:    opts,
		startOn: time.Now(),
		logger: logger.With(xlog.Fields(
			xlog.F("session", id),
			xlog.F("role", params.Role.String()))),
		abortc:  make(chan struct{}),
		stopped: make(chan struct{}),
		devices: devices,
	}

	var err error
	if s.audio, err = newMediaPath(opts.AudioTxRing, opts.AudioRxRing, stats.AudioTotals, stats.AudioFlow); err != nil {
		return nil, fmt.Errorf("session: audio %w", err)
	}
	if s.video, err = newMediaPath(opts.VideoTxRing, opts.VideoRxRing, stats.VideoTotals, stats.VideoFlow); err != nil {
		return nil, fmt.Errorf("session: video %w", err)
	}

	s.audio.conn = stream.NewConn(pair.Audio,
		stream.Backoff(opts.Backoff),
		stream.WithFlow(s.audio.flow))
	s.video.conn = stream.NewConn(pair.Video,
		stream.Backoff(opts.Backoff),
		stream.SocketBuffer(opts.VideoSockBuf),
		stream.WithFlow(s.video.flow))
	return s, nil
}

// ID 会话标识
func (s *Session) ID() string { return s.id }

// Running 运行标志
func (s *Session) Running() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// Abort 清除运行标志；只记录第一个非空原因。
// 可被任意阶段并发调用。
func (s *Session) Abort(err error) {
	s.abortMu.Lock()
	if s.cause == nil && err != nil && !s.aborted {
		s.cause = err
	}
	first := !s.aborted
	s.aborted = true
	s.abortMu.Unlock()

	atomic.StoreInt32(&s.running, 0)
	if first {
		close(s.abortc)
	}
}

// Err 会话终止的原因，主动停止时为 nil
func (s *Session) Err() error {
	s.abortMu.Lock()
	defer s.abortMu.Unlock()
	return s.cause
}

// Done 会话完全停止（阶段已汇合、资源已释放）后关闭
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}

// start 设置运行标志，启动八个阶段和停止观察者
func (s *Session) start() {
	atomic.StoreInt32(&s.running, 1)
	stats.Sessions.Add()
	stats.Peers.Add()
	stats.Peers.Add()

	opts := s.opts
	rt := opts.Realtime
	audioOpts := func(prio int) pipeline.Options {
		return pipeline.Options{Backoff: opts.Backoff, Priority: prio, Warns: opts.StageWarns, Stats: s.audio.stats, Logger: s.logger}
	}
	videoOpts := func(prio int) pipeline.Options {
		return pipeline.Options{Backoff: opts.Backoff, Priority: prio, Warns: opts.StageWarns, Stats: s.video.stats, Logger: s.logger}
	}
	chunk := opts.Audio.PacketBytes()

	stages := []pipeline.Stage{
		pipeline.NewAudioCapture(s.devices.AudioIn, s.audio.tx, chunk, audioOpts(pipeline.PriorityAudioCapture)),
		pipeline.NewAudioTransmit(s.audio.tx, s.audio.conn, chunk, audioOpts(pipeline.PriorityAudioNet)),
		pipeline.NewAudioReceive(s.audio.rx, s.audio.conn, chunk, audioOpts(pipeline.PriorityAudioNet)),
		pipeline.NewAudioPlayback(s.audio.rx, s.devices.AudioOut, opts.Audio.PacketDuration(),
			opts.JitterThreshold, audioOpts(pipeline.PriorityAudioPlayback)),

		pipeline.NewVideoCapture(s.devices.VideoIn, s.video.tx, opts.Video.FramePeriod(),
			opts.SkipEmptyVideo, videoOpts(pipeline.PriorityVideoCapture)),
		pipeline.NewVideoTransmit(s.video.tx, s.video.conn, videoOpts(pipeline.PriorityVideoTransmit)),
		pipeline.NewVideoReceive(s.video.rx, s.video.conn, opts.MaxFrameSize, videoOpts(pipeline.PriorityVideoReceive)),
		pipeline.NewVideoPlayback(s.video.rx, s.devices.VideoOut, videoOpts(pipeline.PriorityVideoPlayback)),
	}
	for _, st := range stages {
		pipeline.Go(&s.stages, s, st, rt, s.logger)
	}

	s.logger.Infof("session started, audio %s <-> %s, video %s <-> %s",
		s.audio.conn.LocalAddr(), s.audio.conn.RemoteAddr(),
		s.video.conn.LocalAddr(), s.video.conn.RemoteAddr())

	// 停止观察者：任何原因清除运行标志后执行收尾
	go func() {
		<-s.abortc
		if s.onStopping != nil {
			s.onStopping(s)
		}
		s.teardown()
	}()
}

// Stop 请求停止并等待收尾完成，返回会话终止的原因
func (s *Session) Stop() error {
	s.Abort(nil)
	<-s.stopped
	return s.Err()
}

// teardown 关闭采集端与播放端解除阻塞，汇合全部阶段，再释放连接和队列
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		start := time.Now()
		s.devices.CloseSources()
		s.devices.CloseSinks()

		s.stages.Wait() // 首个原因已由 Abort 记录
		if d := time.Since(start); d > defaultStopJoinWarnAt {
			s.logger.Warnf("stages took %v to exit", d)
		}

		s.audio.conn.Close()
		s.video.conn.Close()
		dropped := s.audio.tx.Drain() + s.audio.rx.Drain() +
			s.video.tx.Drain() + s.video.rx.Drain()

		stats.Peers.Release()
		stats.Peers.Release()
		stats.Sessions.Release()

		if err := s.Err(); err != nil {
			s.logger.Warnf("session stopped: %v (%d queued frames released)", err, dropped)
		} else {
			s.logger.Infof("session stopped (%d queued frames released)", dropped)
		}

		if s.onStopped != nil {
			s.onStopped(s)
		}
		close(s.stopped)
	})
}

// Info 会话信息
func (s *Session) Info() *Info {
	return &Info{
		ID:      s.id,
		Role:    s.params.Role.String(),
		Peer:    s.params.Peer,
		Port:    s.params.Port,
		StartOn: s.startOn.Format(time.RFC3339Nano),
		Audio:   s.audio.status(),
		Video:   s.video.status(),
	}
}
