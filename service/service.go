// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/config"
	"github.com/cnotch/avchat/device"
	"github.com/cnotch/avchat/session"
	"github.com/cnotch/avchat/stats"
	"github.com/cnotch/queue"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
	"github.com/emitter-io/address"
)

// Service 网络服务对象(服务的入口)
type Service struct {
	context   context.Context
	cancel    context.CancelFunc
	logger    *xlog.Logger
	http      *http.Server
	orch      *session.Orchestrator
	events    *queue.SyncQueue
	devices   *device.Set
	eventsEnd chan struct{}
	closeOnce sync.Once
}

// NewService 创建服务
func NewService(ctx context.Context, l *xlog.Logger, devices *device.Set, opts session.Options) (s *Service, err error) {
	ctx, cancel := context.WithCancel(ctx)
	s = &Service{
		context:   ctx,
		cancel:    cancel,
		logger:    l,
		http:      new(http.Server),
		events:    queue.NewSyncQueue(),
		devices:   devices,
		eventsEnd: make(chan struct{}),
	}
	s.orch = session.NewOrchestrator(opts, s.openDevices,
		session.Events(s.events),
		session.Logger(l))

	// 设置 http 的Handler
	mux := http.NewServeMux()

	if config.Profile() {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	s.initApis(mux)
	mux.Handle("/metrics", stats.MetricsHandler())
	mux.HandleFunc("/view", device.ViewPage)
	mux.Handle("/ws/video", device.Viewers)
	s.http.Handler = mux

	go s.consumeEvents()

	if devices != nil {
		s.logger.Infof("devices: %s", devices)
	}
	s.logger.Info("service configured")
	return s, nil
}

func (s *Service) openDevices(opts session.Options) (*av.Devices, error) {
	if s.devices == nil {
		return nil, fmt.Errorf("no devices configured")
	}
	return s.devices.Open(opts.Audio, opts.Video)
}

// Orchestrator 会话编排器
func (s *Service) Orchestrator() *session.Orchestrator {
	return s.orch
}

// Handler http 处理器
func (s *Service) Handler() http.Handler {
	return s.http.Handler
}

// Listen starts the service.
func (s *Service) Listen() (err error) {
	defer s.Close()
	s.hookSignals()

	addr, err := address.Parse(config.Addr(), 6080)
	if err != nil {
		s.logger.Panic(err.Error())
	}

	s.logger.Infof("starting the listener, addr = %s.", addr.String())
	l, err := net.Listen("tcp", addr.String())
	if err != nil {
		s.logger.Panic(err.Error())
	}

	s.autostart()

	s.logger.Infof("service started(%s).", config.Version)
	if err = s.http.Serve(l); err == http.ErrServerClosed {
		err = nil
	}
	return
}

// autostart 按配置自动建立会话
func (s *Service) autostart() {
	params, ok, err := config.AutoSession()
	if err != nil {
		s.logger.Errorf("invalid session config: %v", err)
		return
	}
	if !ok {
		return
	}
	if err = s.orch.StartAsync(params); err != nil {
		s.logger.Errorf("auto start session failed: %v", err)
	}
}

// Close closes gracefully the service.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}

		// 先停止会话，确保阶段汇合、连接与设备释放
		s.orch.Close()

		// 停止计划任务
		jobs := scheduler.Jobs()
		for _, job := range jobs {
			job.Cancel()
		}

		s.http.Close()
		s.events.Push(endOfEvents{})
		<-s.eventsEnd
	})
}

// OnSignal starts the signal processing and makes su
func (s *Service) hookSignals() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range c {
			s.onSignal(sig)
		}
	}()
}

// OnSignal will be called when a OS-level signal is received.
func (s *Service) onSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGTERM:
		fallthrough
	case syscall.SIGINT:
		s.logger.Warn(fmt.Sprintf("received signal %s, exiting...", sig.String()))
		s.Close()
		os.Exit(0)
	}
}
