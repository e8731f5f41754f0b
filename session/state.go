// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"time"

	"github.com/cnotch/avchat/stats"
)

// State 编排器状态
type State int32

// 状态定义: Idle → Starting → Running → Stopping → Idle
const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

var stateNames = [...]string{"idle", "starting", "running", "stopping"}

// String 返回状态名称
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknow"
	}
	return stateNames[s]
}

// StreamStatus 单路流状态
type StreamStatus struct {
	Stats    stats.StreamSample `json:"stats"`
	Flow     stats.FlowSample   `json:"flow"`
	TxQueued int                `json:"txqueued"`
	RxQueued int                `json:"rxqueued"`
}

// Info 活动会话信息
type Info struct {
	ID      string        `json:"id"`
	Role    string        `json:"role"`
	Peer    string        `json:"peer,omitempty"`
	Port    int           `json:"port"`
	StartOn string        `json:"start_on"`
	Audio   *StreamStatus `json:"audio"`
	Video   *StreamStatus `json:"video"`
}

// Status 编排器状态快照
type Status struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"` // 最近一次状态变化的说明
	Session *Info  `json:"session,omitempty"`
}

// Event 状态变化事件
type Event struct {
	Time    time.Time `json:"time"`
	State   State     `json:"state"`
	Session string    `json:"session,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}
