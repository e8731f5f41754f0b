// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package websocket

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn 只推送的 websocket 连接，每次 Write 发送一条二进制消息
type Conn interface {
	net.Conn
	Path() string            // 接入时的路径
	Closing() <-chan struct{} // 对端关闭或读失败时关闭
}

type websocketConn interface {
	NextReader() (messageType int, r io.Reader, err error)
	NextWriter(messageType int) (io.WriteCloser, error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type websocketTransport struct {
	sync.Mutex
	socket    websocketConn
	closing   chan struct{}
	closeOnce sync.Once
	path      string
}

const (
	writeWait      = 2 * time.Second     // 单条消息的写超时
	pongWait       = 60 * time.Second    // 等待 pong 的时间
	pingPeriod     = (pongWait * 9) / 10 // ping 周期，须小于 pongWait
	maxMessageSize = 4 * 1024            // 观看端只发送控制消息
)

var upgrader = &websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	WriteBufferSize: 64 * 1024,
}

// TryUpgrade 尝试把 HTTP 请求升级为 websocket
func TryUpgrade(w http.ResponseWriter, r *http.Request, path string) (Conn, bool) {
	if w == nil || r == nil {
		return nil, false
	}

	if ws, err := upgrader.Upgrade(w, r, nil); err == nil {
		return newConn(ws, path), true
	}

	return nil, false
}

func newConn(ws websocketConn, path string) Conn {
	conn := &websocketTransport{
		socket:  ws,
		closing: make(chan struct{}),
		path:    path,
	}

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go conn.readPump()
	go conn.pingPump()
	return conn
}

// readPump 丢弃对端消息，只为处理控制帧和发现断开
func (c *websocketTransport) readPump() {
	defer c.Close()
	for {
		if _, r, err := c.socket.NextReader(); err != nil {
			return
		} else if _, err = io.Copy(io.Discard, r); err != nil {
			return
		}
	}
}

func (c *websocketTransport) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.closing:
			return
		case <-ticker.C:
			if err := c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Read 推送连接不支持读取
func (c *websocketTransport) Read(b []byte) (n int, err error) {
	<-c.closing
	return 0, io.EOF
}

// Write 写入一条二进制消息
func (c *websocketTransport) Write(b []byte) (n int, err error) {
	c.Lock()
	defer c.Unlock()

	c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	var w io.WriteCloser
	if w, err = c.socket.NextWriter(websocket.BinaryMessage); err == nil {
		if n, err = w.Write(b); err == nil {
			err = w.Close()
		}
	}
	return
}

// Close 关闭连接，可重复调用
func (c *websocketTransport) Close() (err error) {
	c.closeOnce.Do(func() {
		close(c.closing)
		err = c.socket.Close()
	})
	return
}

// Closing 连接关闭通知
func (c *websocketTransport) Closing() <-chan struct{} {
	return c.closing
}

// LocalAddr returns the local network address.
func (c *websocketTransport) LocalAddr() net.Addr {
	return c.socket.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *websocketTransport) RemoteAddr() net.Addr {
	return c.socket.RemoteAddr()
}

// SetDeadline sets the read and write deadlines associated
// with the connection.
func (c *websocketTransport) SetDeadline(t time.Time) (err error) {
	if err = c.socket.SetReadDeadline(t); err == nil {
		err = c.socket.SetWriteDeadline(t)
	}
	return
}

// SetReadDeadline sets the deadline for future Read calls.
func (c *websocketTransport) SetReadDeadline(t time.Time) error {
	return c.socket.SetReadDeadline(t)
}

// SetWriteDeadline sets the deadline for future Write calls.
func (c *websocketTransport) SetWriteDeadline(t time.Time) error {
	return c.socket.SetWriteDeadline(t)
}

// Path 接入路径
func (c *websocketTransport) Path() string {
	return c.path
}
