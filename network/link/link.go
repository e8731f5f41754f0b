// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package link 建立会话的两条 TCP 连接：音频走 basePort，视频走 basePort+1。
// 服务端每个端口只接受一个对端，客户端主动连接。
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cnotch/avchat/network"
	"github.com/kelindar/tcp"
	"golang.org/x/sync/errgroup"
)

// 端口范围，basePort+1 也必须合法
const (
	MinPort = 1
	MaxPort = 65534
)

// DefaultDialTimeout 默认连接超时
const DefaultDialTimeout = 5 * time.Second

// 错误定义
var (
	ErrInvalidPort = fmt.Errorf("link: port must be in %d..%d", MinPort, MaxPort)
	ErrInvalidRole = errors.New("link: role must be server or client")
)

// Role 会话角色
type Role int

// 角色定义
const (
	RoleServer Role = iota
	RoleClient
)

// String 返回角色名称
func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	}
	return "unknow"
}

// ParseRole 解析角色名称，兼容 s/c 缩写
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server", "s":
		return RoleServer, nil
	case "client", "c":
		return RoleClient, nil
	}
	return RoleServer, ErrInvalidRole
}

// ValidatePort 检查基础端口
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return ErrInvalidPort
	}
	return nil
}

// AudioPort 音频端口
func AudioPort(basePort int) int { return basePort }

// VideoPort 视频端口
func VideoPort(basePort int) int { return basePort + 1 }

// Pair 已建立的一对连接
type Pair struct {
	Audio net.Conn
	Video net.Conn
}

// Close 关闭两条连接
func (p *Pair) Close() error {
	var err error
	if p.Audio != nil {
		err = p.Audio.Close()
	}
	if p.Video != nil {
		if verr := p.Video.Close(); err == nil {
			err = verr
		}
	}
	return err
}

// Listen 在 host 的 basePort 和 basePort+1 上监听，各接受一个对端。
// ctx 取消时中止等待并关闭已接受的连接。
func Listen(ctx context.Context, host string, basePort int) (*Pair, error) {
	if err := ValidatePort(basePort); err != nil {
		return nil, err
	}

	// 先绑定两个端口，避免对端连上音频后视频端口才报错
	al, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(AudioPort(basePort))))
	if err != nil {
		return nil, fmt.Errorf("link: listen audio: %w", err)
	}
	vl, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(VideoPort(basePort))))
	if err != nil {
		al.Close()
		return nil, fmt.Errorf("link: listen video: %w", err)
	}

	pair := new(Pair)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pair.Audio, err = AcceptOne(gctx, al)
		if err != nil {
			err = fmt.Errorf("link: accept audio: %w", err)
		}
		return
	})
	g.Go(func() (err error) {
		pair.Video, err = AcceptOne(gctx, vl)
		if err != nil {
			err = fmt.Errorf("link: accept video: %w", err)
		}
		return
	})
	if err = g.Wait(); err != nil {
		pair.Close()
		return nil, err
	}
	return pair, nil
}

// AcceptOne 在 l 上接受一个连接后关闭 l；多余的连接直接关闭。
// 无论成功与否 l 都会被关闭。
func AcceptOne(ctx context.Context, l net.Listener) (net.Conn, error) {
	accepted := make(chan net.Conn, 1)
	srv := new(tcp.Server)
	srv.OnAccept = func(c net.Conn) {
		select {
		case accepted <- c:
		default: // 已有对端
			c.Close()
		}
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(l) }()

	select {
	case c := <-accepted:
		l.Close()
		return c, nil
	case <-ctx.Done():
		l.Close()
		go func() { // Serve 返回前可能还有连接交付
			<-served
			select {
			case c := <-accepted:
				c.Close()
			case <-time.After(time.Second):
			}
		}()
		return nil, ctx.Err()
	case err := <-served:
		l.Close()
		select {
		case c := <-accepted:
			return c, nil
		default:
		}
		if err == nil {
			err = net.ErrClosed
		}
		return nil, err
	}
}

// Dial 连接对端的 basePort 和 basePort+1。
// peer 可带端口，带端口时以其为基础端口。
func Dial(ctx context.Context, peer string, basePort int, timeout time.Duration) (*Pair, error) {
	if err := ValidatePort(basePort); err != nil {
		return nil, err
	}
	addr, err := network.ResolvePeer(peer, basePort)
	if err != nil {
		return nil, err
	}
	if err = ValidatePort(addr.Port); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	d := net.Dialer{Timeout: timeout}
	host := addr.IP.String()
	pair := new(Pair)
	pair.Audio, err = d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(AudioPort(addr.Port))))
	if err != nil {
		return nil, fmt.Errorf("link: connect audio: %w", err)
	}
	pair.Video, err = d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(VideoPort(addr.Port))))
	if err != nil {
		pair.Close()
		return nil, fmt.Errorf("link: connect video: %w", err)
	}
	return pair, nil
}

// Establish 按角色建立连接
func Establish(ctx context.Context, role Role, host, peer string, basePort int, timeout time.Duration) (*Pair, error) {
	switch role {
	case RoleServer:
		return Listen(ctx, host, basePort)
	case RoleClient:
		return Dial(ctx, peer, basePort, timeout)
	}
	return nil, ErrInvalidRole
}
