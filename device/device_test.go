// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"net"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/cnotch/avchat/av"
	"github.com/cnotch/avchat/config"
	"github.com/cnotch/xlog"
	gws "github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingOutput struct{ DiscardOutput }

func (p *failingOutput) Name() string { return "failing" }
func (p *failingOutput) OpenVideoOut(meta av.VideoMeta) (av.VideoSink, error) {
	return nil, errors.New("no display")
}

type closeTracker struct {
	av.AudioSource
	closed bool
}

func (c *closeTracker) Close() error { c.closed = true; return nil }

type trackingInput struct {
	ToneInput
	last *closeTracker
}

func (p *trackingInput) OpenAudioIn(meta av.AudioMeta) (av.AudioSource, error) {
	src, err := p.ToneInput.OpenAudioIn(meta)
	if err != nil {
		return nil, err
	}
	p.last = &closeTracker{AudioSource: src}
	return p.last, nil
}

func TestNewSet(t *testing.T) {
	_, err := NewSet(new(DiscardOutput), new(DiscardOutput), new(PatternInput), new(DiscardOutput))
	assert.Error(t, err)

	s, err := NewSet(new(ToneInput), new(DiscardOutput), new(PatternInput), new(WebsocketOutput))
	require.NoError(t, err)
	assert.Equal(t, "audio tone -> discard, video pattern -> websocket", s.String())
}

func TestSet_OpenClosesPartial(t *testing.T) {
	ain := &trackingInput{}
	s := &Set{AudioIn: ain, AudioOut: new(DiscardOutput), VideoIn: new(PatternInput), VideoOut: new(failingOutput)}

	devs, err := s.Open(av.DefaultAudioMeta(), av.VideoMeta{Codec: "MJPEG"})
	assert.Nil(t, devs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	require.NotNil(t, ain.last)
	assert.True(t, ain.last.closed)
}

func TestDefaultProviders(t *testing.T) {
	c := &config.ProviderConfig{}
	p, err := config.LoadProvider(c, AudioInputs()...)
	require.NoError(t, err)
	assert.Equal(t, "sox", p.Name())
	p, err = config.LoadProvider(nil, VideoOutputs()...)
	require.NoError(t, err)
	assert.Equal(t, "ffplay", p.Name())

	c = &config.ProviderConfig{Provider: "Tone", Config: map[string]interface{}{"frequency": 1000.0}}
	p, err = c.Load(AudioInputs()...)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, p.(*ToneInput).freq)

	c = &config.ProviderConfig{Provider: "tone", Config: map[string]interface{}{"volume": "loud"}}
	_, err = c.Load(AudioInputs()...)
	assert.Error(t, err)
}

func TestLoadSet(t *testing.T) {
	byName := func(name string) Loader {
		return func(providers ...config.Provider) (config.Provider, error) {
			return config.LoadProvider(&config.ProviderConfig{Provider: name}, providers...)
		}
	}

	set, err := LoadSet(byName("tone"), byName("discard"), byName("pattern"), byName("websocket"))
	require.NoError(t, err)
	assert.Equal(t, "audio tone -> discard, video pattern -> websocket", set.String())

	// 配置错误返回给调用者，不 panic
	_, err = LoadSet(byName("tone"), byName("speaker"), byName("pattern"), byName("discard"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrUnknownProvider))
	assert.Contains(t, err.Error(), "audio output")
}

func TestConfigGetters(t *testing.T) {
	c := map[string]interface{}{
		"s":    "x",
		"n":    12.0,
		"ns":   " 7 ",
		"list": []interface{}{"-a", "b", 3},
		"flds": "-x  -y",
	}
	assert.Equal(t, "x", getString(c, "s", "d"))
	assert.Equal(t, "d", getString(c, "missing", "d"))
	n, err := getInt(c, "n", 0)
	assert.NoError(t, err)
	assert.Equal(t, 12, n)
	n, _ = getInt(c, "ns", 0)
	assert.Equal(t, 7, n)
	_, err = getInt(c, "list", 0)
	assert.Error(t, err)
	assert.Equal(t, []string{"-a", "b"}, getStrings(c, "list"))
	assert.Equal(t, []string{"-x", "-y"}, getStrings(c, "flds"))
	assert.Nil(t, getStrings(nil, "x"))
}

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func TestJPEGSplitter(t *testing.T) {
	a := encodeTestJPEG(t, 16, 16)
	b := encodeTestJPEG(t, 32, 8)

	var stream bytes.Buffer
	stream.WriteString("garbage")
	stream.Write(a)
	stream.Write(b)
	stream.Write(b[:10])

	s := newJPEGSplitter(&stream, 1<<20)
	f, err := s.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, a, f)
	f, err = s.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, b, f)
	_, err = s.ReadFrame()
	assert.Equal(t, io.ErrUnexpectedEOF, err)

	s = newJPEGSplitter(bytes.NewReader(a), 8)
	_, err = s.ReadFrame()
	assert.Equal(t, ErrJPEGTooLarge, err)
}

func TestMjpegQScale(t *testing.T) {
	assert.Equal(t, 2, mjpegQScale(100))
	assert.Equal(t, mjpegQScale(av.DefaultQuality), mjpegQScale(-1))
	assert.Equal(t, 29, mjpegQScale(10))
	assert.Equal(t, 2, mjpegQScale(500))
}

func TestFfmpegInput_Args(t *testing.T) {
	p := new(FfmpegInput)
	require.NoError(t, p.Configure(map[string]interface{}{"device": "/dev/video2", "args": "-input_format mjpeg"}))
	args := strings.Join(p.args(av.VideoMeta{FrameRate: 15, Width: 320, Height: 240, Quality: 100}), " ")
	assert.Contains(t, args, "-f v4l2 -framerate 15 -video_size 320x240 -input_format mjpeg -i /dev/video2")
	assert.True(t, strings.HasSuffix(args, "-f mjpeg -q:v 2 -"))

	_, err := p.OpenVideoIn(av.VideoMeta{Codec: "H264"})
	assert.Equal(t, ErrUnsupportedFormat, err)
}

func TestToneInput(t *testing.T) {
	p := new(ToneInput)
	require.NoError(t, p.Configure(map[string]interface{}{"volume": 100.0}))
	meta := av.DefaultAudioMeta()
	src, err := p.OpenAudioIn(meta)
	require.NoError(t, err)

	buf := make([]byte, meta.PacketBytes())
	start := time.Now()
	for i := 0; i < 3; i++ {
		n, err := src.ReadPacket(buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
	}
	assert.True(t, time.Since(start) >= 2*meta.PacketDuration(), "tone is paced in real time")

	var peak int16
	for i := 0; i < len(buf); i += 2 {
		if v := int16(binary.LittleEndian.Uint16(buf[i:])); v > peak {
			peak = v
		}
	}
	assert.True(t, peak > 30000)

	require.NoError(t, src.(io.Closer).Close())
	n, err := src.ReadPacket(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	_, err = p.OpenAudioIn(av.AudioMeta{SampleRate: 8000, SampleSize: 8, Channels: 1, PacketMs: 20})
	assert.Equal(t, ErrUnsupportedFormat, err)
}

func TestPatternInput(t *testing.T) {
	p := new(PatternInput)
	require.NoError(t, p.Configure(nil))
	src, err := p.OpenVideoIn(av.VideoMeta{Codec: "MJPEG", Width: 64, Height: 48, Quality: 80})
	require.NoError(t, err)

	f1, err := src.ReadFrame()
	require.NoError(t, err)
	f2, err := src.ReadFrame()
	require.NoError(t, err)
	assert.NotEqual(t, f1, f2, "pattern moves between frames")

	img, err := jpeg.Decode(bytes.NewReader(f1))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())

	require.NoError(t, src.(io.Closer).Close())
	f, err := src.ReadFrame()
	assert.NoError(t, err)
	assert.Empty(t, f)
}

func TestRTPOutput(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	p := new(RTPOutput)
	require.NoError(t, p.Configure(map[string]interface{}{"address": pc.LocalAddr().String()}))
	meta := av.DefaultAudioMeta()
	sink, err := p.OpenAudioOut(meta)
	require.NoError(t, err)
	defer sink.(io.Closer).Close()

	pcm := make([]byte, meta.PacketBytes())
	binary.LittleEndian.PutUint16(pcm, 0x1234)
	require.NoError(t, sink.PlayPacket(pcm))

	pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	var pkts []rtp.Packet
	for i := 0; i < 2; i++ {
		n, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)
		var pkt rtp.Packet
		require.NoError(t, pkt.Unmarshal(append([]byte(nil), buf[:n]...)))
		pkts = append(pkts, pkt)
	}

	assert.Equal(t, uint8(rtpPayloadL16Mono), pkts[0].PayloadType)
	assert.Equal(t, defaultRTPPayload, len(pkts[0].Payload))
	assert.Equal(t, meta.PacketBytes()-defaultRTPPayload, len(pkts[1].Payload))
	assert.Equal(t, []byte{0x12, 0x34}, pkts[0].Payload[:2], "samples in network byte order")
	assert.Equal(t, pkts[0].SequenceNumber+1, pkts[1].SequenceNumber)
	assert.Equal(t, pkts[0].Timestamp+defaultRTPPayload/2, pkts[1].Timestamp)
	assert.Equal(t, pkts[0].SSRC, pkts[1].SSRC)
}

func TestRTPSink_SDP(t *testing.T) {
	meta := av.DefaultAudioMeta()
	s := newRTPSink(nil, meta, defaultRTPPayload)
	text := s.SDP(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5004})
	assert.Contains(t, text, "m=audio 5004 RTP/AVP 11\r\n")
	assert.Contains(t, text, "a=rtpmap:11 L16/44100/1\r\n")
	assert.NoError(t, checkSDP(text, meta))

	meta.SampleRate = 48000
	assert.Error(t, checkSDP(text, meta))
}

func TestViewerHub(t *testing.T) {
	hub := NewViewerHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	hub.Broadcast([]byte("first"))
	ws, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/video", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, p, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gws.BinaryMessage, mt)
	assert.Equal(t, "first", string(p), "new viewer receives the last frame")

	hub.Broadcast([]byte("second"))
	_, p, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "second", string(p))

	ws.Close()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestOffer_KeepsLatest(t *testing.T) {
	c := make(chan []byte, 1)
	offer(c, []byte("a"))
	offer(c, []byte("b"))
	assert.Equal(t, "b", string(<-c))
}

func TestProcess_Pipes(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	proc, err := startProcess("cat", nil, nil, true, true)
	require.NoError(t, err)
	r := &pcmReader{process: proc}
	w := &pcmWriter{process: proc}

	require.NoError(t, w.PlayPacket([]byte("abcd")))
	buf := make([]byte, 4)
	n, err := r.ReadPacket(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))

	require.NoError(t, proc.Close())
	require.NoError(t, proc.Close())
}

func TestProcess_CloseUnblocks(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	// 读：子进程不输出，Close 后读取返回 EOF
	proc, err := startProcess("sleep", []string{"10"}, nil, false, true)
	require.NoError(t, err)
	r := &pcmReader{process: proc}
	read := make(chan error, 1)
	go func() {
		_, err := r.ReadPacket(make([]byte, 1764))
		read <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Close())
	select {
	case err = <-read:
		assert.Equal(t, io.EOF, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read still blocked after close")
	}

	// 写：子进程不读取，管道写满后阻塞，Close 后写入返回错误
	proc, err = startProcess("sleep", []string{"10"}, nil, true, false)
	require.NoError(t, err)
	w := &pcmWriter{process: proc}
	written := make(chan error, 1)
	go func() {
		written <- w.PlayPacket(make([]byte, 4<<20))
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, w.Close())
	select {
	case err = <-written:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("write still blocked after close")
	}
}

func TestStderrLogger(t *testing.T) {
	l := &stderrLogger{name: "x", logger: xlog.L()}
	n, err := l.Write([]byte("line one\nline two\n"))
	assert.NoError(t, err)
	assert.Equal(t, 18, n)

	assert.False(t, DetectProgram(xlog.L(), "avchat-no-such-program-xyz"))
}
