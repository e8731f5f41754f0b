// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package network

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/emitter-io/address"
)

// ErrEmptyPeer 未指定对端地址
var ErrEmptyPeer = errors.New("peer address is required")

// GetIP 获取IP信息
func GetIP(addr net.Addr) string {
	s := addr.String()
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s
	}
	return s[:i]
}

// ResolvePeer 解析对端地址，peer 可以是 host 或 host:port，
// 也可以是 address 包支持的 private/public 等别名。
// 未带端口时使用 defaultPort。
func ResolvePeer(peer string, defaultPort int) (*net.TCPAddr, error) {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return nil, ErrEmptyPeer
	}
	addr, err := address.Parse(peer, defaultPort)
	if err != nil {
		return nil, fmt.Errorf("resolve peer %q: %w", peer, err)
	}
	return addr, nil
}

// IsLocalhostIP 判断是否为本机IP
func IsLocalhostIP(ip net.IP) bool {
	for _, localhost := range loopbackBlocks {
		if localhost.Contains(ip) {
			return true
		}
	}
	privs, err := address.GetPrivate()
	if err != nil {
		return false
	}

	for _, priv := range privs {
		if priv.IP.Equal(ip) {
			return true
		}
	}

	return false
}

var loopbackBlocks = []*net.IPNet{
	parseCIDR("0.0.0.0/8"),   // RFC 1918 IPv4 loopback address
	parseCIDR("127.0.0.0/8"), // RFC 1122 IPv4 loopback address
	parseCIDR("::1/128"),     // RFC 1884 IPv6 loopback address
}

func parseCIDR(s string) *net.IPNet {
	_, block, err := net.ParseCIDR(s)
	if err != nil {
		panic(fmt.Sprintf("Bad CIDR %s: %s", s, err))
	}
	return block
}
