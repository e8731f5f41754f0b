// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/media"
	"github.com/cnotch/xlog"
	"github.com/pion/rtp"
)

// RTP 参数
const (
	rtpVersion        = 2
	rtpPayloadL16Mono = 11 // RFC 3551: L16/44100/1
	rtpPayloadDynamic = 96
	defaultRTPAddress = "127.0.0.1:5004"
	defaultRTPPayload = 1200
)

// RTPOutput 把收到的 PCM 以 RTP L16 转发到 UDP 地址，
// 可用任意支持 sdp 的播放器收听
type RTPOutput struct {
	address    string
	maxPayload int
	sdpFile    string
}

// Name 提供者名称
func (p *RTPOutput) Name() string { return "rtp" }

// Configure 配置：address(目标 host:port)、payload(单包最大负载)、sdpfile(写出 sdp 的路径)
func (p *RTPOutput) Configure(config map[string]interface{}) (err error) {
	p.address = getString(config, "address", defaultRTPAddress)
	p.sdpFile = getString(config, "sdpfile", "")
	if p.maxPayload, err = getInt(config, "payload", defaultRTPPayload); err != nil {
		return
	}
	if p.maxPayload < 64 {
		return fmt.Errorf("rtp: payload %d too small", p.maxPayload)
	}
	return nil
}

// OpenAudioOut 创建 UDP 发送端，并生成对应的 sdp
func (p *RTPOutput) OpenAudioOut(meta av.AudioMeta) (av.AudioSink, error) {
	if meta.Validate() != nil || meta.SampleSize != 16 {
		return nil, ErrUnsupportedFormat
	}
	if p.address == "" {
		if err := p.Configure(nil); err != nil {
			return nil, err
		}
	}

	raddr, err := net.ResolveUDPAddr("udp", p.address)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}

	s := newRTPSink(conn, meta, p.maxPayload)
	sdpText := s.SDP(raddr)
	if err = checkSDP(sdpText, meta); err != nil {
		conn.Close()
		return nil, err
	}
	if p.sdpFile != "" {
		if err = os.WriteFile(p.sdpFile, []byte(sdpText), 0644); err != nil {
			xlog.L().Warnf("rtp: write sdp file failed: %v", err)
		}
	}
	xlog.L().Infof("rtp: audio forwarded to %s, payload type %d", raddr, s.payloadType)
	return s, nil
}

type rtpSink struct {
	mu          sync.Mutex
	conn        net.Conn
	meta        av.AudioMeta
	payloadType uint8
	ssrc        uint32
	seq         uint16
	timestamp   uint32
	maxPayload  int
	scratch     []byte
}

func newRTPSink(conn net.Conn, meta av.AudioMeta, maxPayload int) *rtpSink {
	pt := uint8(rtpPayloadDynamic)
	if meta.SampleRate == 44100 && meta.Channels == 1 {
		pt = rtpPayloadL16Mono
	}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	frameBytes := meta.BytesPerSample()
	return &rtpSink{
		conn:        conn,
		meta:        meta,
		payloadType: pt,
		ssrc:        rnd.Uint32(),
		seq:         uint16(rnd.Uint32()),
		timestamp:   rnd.Uint32(),
		maxPayload:  maxPayload / frameBytes * frameBytes,
	}
}

// PlayPacket 小端采样转为网络字节序，按负载上限拆分为多个 RTP 包
func (s *rtpSink) PlayPacket(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cap(s.scratch) < len(p) {
		s.scratch = make([]byte, len(p))
	}
	be := s.scratch[:len(p)&^1]
	for i := 0; i+1 < len(p); i += 2 {
		be[i], be[i+1] = p[i+1], p[i]
	}

	frameBytes := uint32(s.meta.BytesPerSample())
	for len(be) > 0 {
		n := len(be)
		if n > s.maxPayload {
			n = s.maxPayload
		}
		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        rtpVersion,
				PayloadType:    s.payloadType,
				SequenceNumber: s.seq,
				Timestamp:      s.timestamp,
				SSRC:           s.ssrc,
				Marker:         false,
			},
			Payload: be[:n],
		}
		raw, err := pkt.Marshal()
		if err != nil {
			return err
		}
		if _, err = s.conn.Write(raw); err != nil {
			return err
		}
		s.seq++
		s.timestamp += uint32(n) / frameBytes
		be = be[n:]
	}
	return nil
}

// SDP 描述该 RTP 流
func (s *rtpSink) SDP(dest *net.UDPAddr) string {
	var b strings.Builder
	b.WriteString("v=0\r\n")
	fmt.Fprintf(&b, "o=- %d 1 IN IP4 %s\r\n", s.ssrc, dest.IP)
	b.WriteString("s=avchat\r\n")
	fmt.Fprintf(&b, "c=IN IP4 %s\r\n", dest.IP)
	b.WriteString("t=0 0\r\n")
	fmt.Fprintf(&b, "m=audio %d RTP/AVP %d\r\n", dest.Port, s.payloadType)
	fmt.Fprintf(&b, "a=rtpmap:%d L16/%d/%d\r\n", s.payloadType, s.meta.SampleRate, s.meta.Channels)
	fmt.Fprintf(&b, "a=ptime:%d\r\n", s.meta.PacketMs)
	return b.String()
}

func (s *rtpSink) Close() error {
	return s.conn.Close()
}

// checkSDP 解析生成的 sdp，确认与会话音频参数一致
func checkSDP(text string, meta av.AudioMeta) error {
	var parsed av.AudioMeta
	if err := media.ParseMeta(text, nil, &parsed); err != nil {
		return fmt.Errorf("rtp: invalid sdp: %w", err)
	}
	if parsed.Codec != "L16" || parsed.SampleRate != meta.SampleRate || parsed.Channels != meta.Channels {
		return fmt.Errorf("rtp: sdp mismatch, got %s/%d/%d", parsed.Codec, parsed.SampleRate, parsed.Channels)
	}
	return nil
}
