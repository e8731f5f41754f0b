// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cnotch/apirouter"
	"github.com/cnotch/avchat/config"
	"github.com/cnotch/avchat/device"
	"github.com/cnotch/avchat/network/link"
	"github.com/cnotch/avchat/session"
	"github.com/cnotch/avchat/stats"
)

var (
	buffers = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 1024*2))
		},
	}
)

var crossdomainxml = []byte(
	`<?xml version="1.0" ?><cross-domain-policy>
			<allow-access-from domain="*" />
			<allow-http-request-headers-from domain="*" headers="*"/>
		</cross-domain-policy>`)

func (s *Service) initApis(mux *http.ServeMux) {
	api := apirouter.NewForGRPC(
		// 系统信息类API
		apirouter.GET("/api/v1/server", s.onGetServerInfo),
		apirouter.GET("/api/v1/runtime", s.onGetRuntime),

		// 会话管理API
		apirouter.GET("/api/v1/session", s.onGetSession),
		apirouter.POST("/api/v1/session", s.onStartSession),
		apirouter.DELETE("/api/v1/session", s.onStopSession),
	)

	// api add to mux
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if path.Base(r.URL.Path) == "crossdomain.xml" {
			w.Header().Set("Content-Type", "application/xml")
			w.Write(crossdomainxml)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		api.ServeHTTP(w, r)
	})
}

// 获取服务信息
func (s *Service) onGetServerInfo(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	type server struct {
		Vendor   string `json:"vendor"`
		Name     string `json:"name"`
		Version  string `json:"version"`
		OS       string `json:"os"`
		Arch     string `json:"arch"`
		StartOn  string `json:"start_on"`
		Duration string `json:"duration"`
	}
	srv := server{
		Vendor:   config.Vendor,
		Name:     config.Name,
		Version:  config.Version,
		OS:       runtime.GOOS,
		Arch:     strings.ToUpper(runtime.GOARCH),
		StartOn:  stats.StartingTime.Format(time.RFC3339Nano),
		Duration: time.Now().Sub(stats.StartingTime).String(),
	}

	if err := jsonTo(w, &srv); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// 获取运行时信息
func (s *Service) onGetRuntime(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	const extraKey = "extra"

	type flows struct {
		Audio stats.FlowSample `json:"audio"`
		Video stats.FlowSample `json:"video"`
	}
	type runtime struct {
		On       string            `json:"on"`
		Proc     stats.Proc        `json:"proc"`
		Sessions stats.ConnsSample `json:"sessions"`
		Peers    stats.ConnsSample `json:"peers"`
		Flow     flows             `json:"flow"`
		Viewers  int               `json:"viewers"`
		Extra    *stats.Runtime    `json:"extra,omitempty"`
	}

	rt := runtime{
		On:       time.Now().Format(time.RFC3339Nano),
		Proc:     stats.MeasureRuntime(),
		Sessions: stats.Sessions.GetSample(),
		Peers:    stats.Peers.GetSample(),
		Flow: flows{
			Audio: stats.AudioFlow.GetSample(),
			Video: stats.VideoFlow.GetSample(),
		},
		Viewers: device.Viewers.Count(),
	}

	params := r.URL.Query()
	if strings.TrimSpace(params.Get(extraKey)) == "1" {
		rt.Extra = stats.MeasureFullRuntime()
	}

	if err := jsonTo(w, &rt); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// 会话状态
func (s *Service) onGetSession(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	if err := jsonTo(w, s.orch.Status()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// startRequest 会话启动请求
type startRequest struct {
	Role string `json:"role"`
	Peer string `json:"peer,omitempty"`
	Port int    `json:"port"`
}

// 异步启动会话；参数错误与忙碌同步返回
func (s *Service) onStartSession(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// 尝试 Form解析
		req.Role = r.FormValue("role")
		req.Peer = r.FormValue("peer")
		if req.Port, err = strconv.Atoi(r.FormValue("port")); err != nil {
			http.Error(w, "invalid session request", http.StatusBadRequest)
			return
		}
	}

	role, err := link.ParseRole(req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	params := session.Params{Role: role, Peer: req.Peer, Port: req.Port}
	if err = s.orch.StartAsync(params); err != nil {
		status := http.StatusBadRequest
		if err == session.ErrBusy {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	if err := jsonTo(w, s.orch.Status()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// 停止会话，返回时全部阶段已汇合
func (s *Service) onStopSession(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	err := s.orch.Stop()
	if errors.Is(err, session.ErrNotRunning) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Warnf("session ended with: %v", err)
	}

	if err := jsonTo(w, s.orch.Status()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func jsonTo(w io.Writer, o interface{}) error {
	formatted := buffers.Get().(*bytes.Buffer)
	formatted.Reset()
	defer buffers.Put(formatted)

	body, err := json.Marshal(o)
	if err != nil {
		return err
	}

	if err := json.Indent(formatted, body, "", "\t"); err != nil {
		return err
	}

	if _, err := w.Write(formatted.Bytes()); err != nil {
		return err
	}
	return nil
}
