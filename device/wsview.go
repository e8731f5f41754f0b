// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"net/http"
	"sync"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/network/websocket"
	"github.com/cnotch/xlog"
)

// Viewers 浏览器观看端集合，由 WebsocketOutput 推送对端视频
var Viewers = NewViewerHub()

// ViewerHub 把 JPEG 帧广播给所有 websocket 观看端。
// 每个观看端只保留最新的帧，慢的观看端丢弃旧帧。
type ViewerHub struct {
	mu      sync.Mutex
	viewers map[*viewer]struct{}
	last    []byte
}

type viewer struct {
	conn  websocket.Conn
	frame chan []byte
}

// NewViewerHub 创建观看端集合
func NewViewerHub() *ViewerHub {
	return &ViewerHub{viewers: make(map[*viewer]struct{})}
}

// Count 当前观看端数量
func (h *ViewerHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Broadcast 推送一帧，调用方之后不得再修改 p
func (h *ViewerHub) Broadcast(p []byte) {
	h.mu.Lock()
	h.last = p
	for v := range h.viewers {
		offer(v.frame, p)
	}
	h.mu.Unlock()
}

// Reset 会话结束时清除最后一帧
func (h *ViewerHub) Reset() {
	h.mu.Lock()
	h.last = nil
	h.mu.Unlock()
}

// offer 非阻塞放入，满时替换旧帧
func offer(c chan []byte, p []byte) {
	for {
		select {
		case c <- p:
			return
		default:
		}
		select {
		case <-c:
		default:
		}
	}
}

// ServeHTTP 升级为 websocket 并持续推送，直到观看端断开
func (h *ViewerHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, ok := websocket.TryUpgrade(w, r, r.URL.Path)
	if !ok {
		return
	}

	v := &viewer{conn: conn, frame: make(chan []byte, 1)}
	h.mu.Lock()
	h.viewers[v] = struct{}{}
	if h.last != nil {
		v.frame <- h.last
	}
	h.mu.Unlock()

	logger := xlog.L().With(xlog.Fields(xlog.F("viewer", conn.RemoteAddr().String())))
	logger.Info("video viewer connected")
	defer func() {
		h.mu.Lock()
		delete(h.viewers, v)
		h.mu.Unlock()
		conn.Close()
		logger.Info("video viewer disconnected")
	}()

	for {
		select {
		case <-conn.Closing():
			return
		case p := <-v.frame:
			if _, err := conn.Write(p); err != nil {
				logger.Debugf("write frame failed: %v", err)
				return
			}
		}
	}
}

// WebsocketOutput 把对端视频推送给浏览器观看端
type WebsocketOutput struct{}

// Name 提供者名称
func (p *WebsocketOutput) Name() string { return "websocket" }

// Configure 无配置项，观看地址由 http 服务提供
func (p *WebsocketOutput) Configure(config map[string]interface{}) error { return nil }

// OpenVideoOut 打开推送端
func (p *WebsocketOutput) OpenVideoOut(meta av.VideoMeta) (av.VideoSink, error) {
	if !isJPEG(meta.Codec) {
		return nil, ErrUnsupportedFormat
	}
	return &hubSink{hub: Viewers}, nil
}

type hubSink struct {
	hub *ViewerHub
}

// ShowFrame 播放端传入的缓冲区在返回后会被回收，这里复制一份
func (s *hubSink) ShowFrame(p []byte) {
	s.hub.Broadcast(append([]byte(nil), p...))
}

func (s *hubSink) Close() error {
	s.hub.Reset()
	return nil
}

// ViewPage 简单的观看页面
func ViewPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(viewHTML))
}

const viewHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>avchat</title></head>
<body style="margin:0;background:#000">
<img id="v" style="display:block;margin:auto;max-width:100%;max-height:100vh">
<script>
(function() {
  var img = document.getElementById('v'), url = null;
  function connect() {
    var ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws/video');
    ws.binaryType = 'blob';
    ws.onmessage = function(e) {
      var next = URL.createObjectURL(new Blob([e.data], {type: 'image/jpeg'}));
      img.src = next;
      if (url) URL.revokeObjectURL(url);
      url = next;
    };
    ws.onclose = function() { setTimeout(connect, 1000); };
  }
  connect();
})();
</script>
</body>
</html>
`
