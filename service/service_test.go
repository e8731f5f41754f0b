// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cnotch/avchat/device"
	"github.com/cnotch/avchat/network/link"
	"github.com/cnotch/avchat/session"
	"github.com/cnotch/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *httptest.Server) {
	set, err := device.NewSet(new(device.ToneInput), new(device.DiscardOutput),
		new(device.PatternInput), new(device.DiscardOutput))
	require.NoError(t, err)

	opts := session.DefaultOptions()
	opts.Video.Width, opts.Video.Height = 64, 48
	opts.MonitorPeriod = 0
	s, err := NewService(context.Background(), xlog.L(), set, opts)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return s, srv
}

func freePortPair(t *testing.T) int {
	for i := 0; i < 20; i++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := l.Addr().(*net.TCPAddr).Port
		l2, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port+1))
		l.Close()
		if err == nil && port < link.MaxPort {
			l2.Close()
			return port
		}
	}
	t.Fatal("no free port pair")
	return 0
}

func do(t *testing.T, method, url, body string) (int, string) {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func getStatus(t *testing.T, base string) session.Status {
	code, body := do(t, http.MethodGet, base+"/api/v1/session", "")
	require.Equal(t, http.StatusOK, code)
	var st session.Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	return st
}

func TestService_InfoApis(t *testing.T) {
	_, srv := newTestService(t)

	code, body := do(t, http.MethodGet, srv.URL+"/api/v1/server", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"name": "avchat"`)

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/runtime?extra=1", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"sessions"`)
	assert.Contains(t, body, `"extra"`)

	code, body = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "avchat_")

	code, body = do(t, http.MethodGet, srv.URL+"/view", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "/ws/video")

	code, _ = do(t, http.MethodGet, srv.URL+"/api/crossdomain.xml", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestService_SessionApiErrors(t *testing.T) {
	_, srv := newTestService(t)

	assert.Equal(t, "idle", getStatus(t, srv.URL).State)

	code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/session", `{"role":"relay","port":6000}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/session", `{"role":"server","port":0}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/session", `{"role":"client","port":6000}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodDelete, srv.URL+"/api/v1/session", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestService_SessionLifecycle(t *testing.T) {
	port := freePortPair(t)
	server, serverSrv := newTestService(t)
	_, clientSrv := newTestService(t)

	serverReq := `{"role":"server","port":` + strconv.Itoa(port) + `}`
	clientReq := `{"role":"client","peer":"127.0.0.1","port":` + strconv.Itoa(port) + `}`

	code, body := do(t, http.MethodPost, serverSrv.URL+"/api/v1/session", serverReq)
	require.Equal(t, http.StatusAccepted, code, body)
	code, _ = do(t, http.MethodPost, serverSrv.URL+"/api/v1/session", serverReq)
	assert.Equal(t, http.StatusConflict, code)

	// 服务端在后台绑定端口，客户端失败后重试
	require.Eventually(t, func() bool {
		st := getStatus(t, clientSrv.URL)
		if st.State == "idle" {
			do(t, http.MethodPost, clientSrv.URL+"/api/v1/session", clientReq)
			return false
		}
		return st.State == "running"
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return getStatus(t, serverSrv.URL).State == "running" },
		2*time.Second, 10*time.Millisecond)

	// 对端的音视频到达
	require.Eventually(t, func() bool {
		st := getStatus(t, serverSrv.URL)
		return st.Session != nil && st.Session.Audio.Stats.Received > 0 && st.Session.Video.Stats.Received > 0
	}, 5*time.Second, 20*time.Millisecond)

	code, body = do(t, http.MethodDelete, clientSrv.URL+"/api/v1/session", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"state": "idle"`)

	require.Eventually(t, func() bool { return server.Orchestrator().State() == session.StateIdle },
		2*time.Second, 10*time.Millisecond)
}

func TestService_CloseStopsSession(t *testing.T) {
	port := freePortPair(t)
	s, _ := newTestService(t)

	require.NoError(t, s.Orchestrator().StartAsync(session.Params{
		Role: link.RoleServer, Port: port, ListenHost: "127.0.0.1"}))
	assert.Equal(t, session.StateStarting, s.Orchestrator().State())

	s.Close()
	assert.Equal(t, session.StateIdle, s.Orchestrator().State())
	s.Close()
}
