// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/cnotch/avchat/stats"
)

const (
	defaultBackoff = 2 * time.Millisecond
	minBackoff     = 100 * time.Microsecond
)

// 错误定义
var (
	// ErrWouldBlock 当前无法读写，稍后重试
	ErrWouldBlock = errors.New("stream: operation would block")
	// ErrStopped 发送过程中运行标志被清除
	ErrStopped = errors.New("stream: stopped")
)

// Conn 包装 net.Conn，提供非阻塞语义：
// 每次 Read/Write 最多等待一个退避间隔，期间无法推进则返回 ErrWouldBlock。
// 一个 Conn 只由一个发送 goroutine 写、一个接收 goroutine 读。
type Conn struct {
	socket  net.Conn      // The underlying network connection.
	backoff time.Duration // 单次读写的最长等待
	noDelay bool
	sockBuf int // 内核收发缓冲，0 表示不修改
	flow    stats.Flow
}

// NewConn 创建非阻塞连接
func NewConn(c net.Conn, options ...Option) *Conn {
	conn := &Conn{
		socket:  c,
		backoff: defaultBackoff,
		noDelay: true,
	}

	for _, option := range options {
		option.apply(conn)
	}

	if conn.flow == nil {
		conn.flow = stats.NewFlow()
	}

	if tc, ok := c.(*net.TCPConn); ok {
		tc.SetNoDelay(conn.noDelay)
		if conn.sockBuf > 0 {
			tc.SetReadBuffer(conn.sockBuf)
			tc.SetWriteBuffer(conn.sockBuf)
		}
	}
	return conn
}

// Backoff 返回退避间隔
func (c *Conn) Backoff() time.Duration {
	return c.backoff
}

// Flow 流量统计
func (c *Conn) Flow() stats.Flow {
	return c.flow
}

// Read 读取当前可用的数据。
// 等待一个退避间隔仍无数据时返回 ErrWouldBlock；对端有序关闭返回 io.EOF。
func (c *Conn) Read(p []byte) (int, error) {
	if err := c.socket.SetReadDeadline(time.Now().Add(c.backoff)); err != nil {
		return 0, err
	}
	n, err := c.socket.Read(p)
	if n > 0 {
		c.flow.AddIn(int64(n))
	}
	if err != nil && isTimeout(err) {
		if n > 0 {
			return n, nil
		}
		return 0, ErrWouldBlock
	}
	return n, err
}

// Write 尝试写一次，可能只写出部分数据。
// 一个退避间隔内无法写完时返回已写字节数和 ErrWouldBlock。
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.socket.SetWriteDeadline(time.Now().Add(c.backoff)); err != nil {
		return 0, err
	}
	n, err := c.socket.Write(p)
	if n > 0 {
		c.flow.AddOut(int64(n))
	}
	if err != nil && isTimeout(err) {
		return n, ErrWouldBlock
	}
	return n, err
}

// Sender 返回一个完全重试的发送器：每次 Write 循环累加已发送字节，
// 直到全部发出；ErrWouldBlock 时重试，running 返回 false 时以 ErrStopped
// 结束，其它错误直接返回。
func (c *Conn) Sender(running func() bool) io.Writer {
	return &sender{conn: c, running: running}
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.socket.Close()
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.socket.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.socket.RemoteAddr()
}

type sender struct {
	conn    *Conn
	running func() bool
}

func (s *sender) Write(p []byte) (int, error) {
	sent := 0
	for sent < len(p) {
		if !s.running() {
			return sent, ErrStopped
		}
		n, err := s.conn.Write(p[sent:])
		sent += n
		if err == ErrWouldBlock {
			continue // 写超时本身就是退避
		}
		if err != nil {
			return sent, err
		}
	}
	return sent, nil
}

// IsWouldBlock 判断是否为可重试的临时错误
func IsWouldBlock(err error) bool {
	return err == ErrWouldBlock || err == io.ErrNoProgress
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Option 配置 Conn 的选项接口
type Option interface {
	apply(*Conn)
}

// OptionFunc 包装函数以便它满足 Option 接口
type optionFunc func(*Conn)

func (f optionFunc) apply(c *Conn) {
	f(c)
}

// Backoff 单次读写的最长等待（退避间隔）
func Backoff(d time.Duration) Option {
	return optionFunc(func(c *Conn) {
		if d < minBackoff { // 如果不合规，设置成最小值
			d = minBackoff
		}
		c.backoff = d
	})
}

// NoDelay 是否禁用 Nagle 算法，默认禁用
func NoDelay(on bool) Option {
	return optionFunc(func(c *Conn) {
		c.noDelay = on
	})
}

// SocketBuffer 内核收发缓冲大小
func SocketBuffer(size int) Option {
	return optionFunc(func(c *Conn) {
		c.sockBuf = size
	})
}

// WithFlow 流量统计
func WithFlow(flow stats.Flow) Option {
	return optionFunc(func(c *Conn) {
		c.flow = flow
	})
}
