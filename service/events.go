// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"github.com/cnotch/avchat/session"
	"github.com/cnotch/xlog"
)

// endOfEvents 通知事件循环退出
type endOfEvents struct{}

// consumeEvents 记录编排器的状态变化
func (s *Service) consumeEvents() {
	defer close(s.eventsEnd)
	for {
		switch e := s.events.Pop().(type) {
		case endOfEvents:
			return
		case *session.Event:
			s.logEvent(e)
		}
	}
}

func (s *Service) logEvent(e *session.Event) {
	logger := s.logger
	if e.Session != "" {
		logger = logger.With(xlog.Fields(xlog.F("session", e.Session)))
	}

	switch {
	case e.Err != nil:
		logger.Warnf("session %s: %s", e.State, e.Message)
	case e.State == session.StateRunning || e.State == session.StateIdle:
		logger.Infof("session %s: %s", e.State, e.Message)
	default:
		if logger.LevelEnabled(xlog.DebugLevel) {
			logger.Debugf("session %s: %s", e.State, e.Message)
		}
	}
}
