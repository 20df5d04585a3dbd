package engine

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var testCodecs = []webrtc.RTPCodecCapability{
	{MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
	{MimeType: "video/VP8", ClockRate: 90000},
}

var testOpts = core.TransportOptions{ListenIP: "127.0.0.1", PreferUDP: true}

func newTestRouter(t *testing.T) core.Router {
	t.Helper()
	e := New(42000, 42100)
	t.Cleanup(e.Close)
	r, err := e.CreateRouter(testCodecs)
	require.NoError(t, err)
	return r
}

func connect(t *testing.T, tr core.Transport) {
	t.Helper()
	require.NoError(t, tr.Connect(core.DTLSParameters{Role: "client"}))
}

// produceAudio sets up a connected transport with one opus producer.
func produceAudio(t *testing.T, r core.Router) (core.Transport, core.Producer) {
	t.Helper()
	tr, err := r.CreateTransport(testOpts)
	require.NoError(t, err)
	connect(t, tr)
	p, err := tr.Produce(domain.MediaKindAudio, core.RTPParameters{MimeType: "audio/opus", ClockRate: 48000, Channels: 2})
	require.NoError(t, err)
	return tr, p
}

// TestTransportInfo verifies the connect descriptor is complete: ICE
// credentials, one host candidate in the configured range and a sha-256
// fingerprint.
func TestTransportInfo(t *testing.T) {
	r := newTestRouter(t)
	tr, err := r.CreateTransport(testOpts)
	require.NoError(t, err)

	info := tr.Info()
	require.NotEmpty(t, info.ID)
	require.Len(t, info.ICEParameters.UsernameFragment, 16)
	require.Len(t, info.ICEParameters.Password, 32)
	require.True(t, info.ICEParameters.ICELite)

	require.Len(t, info.ICECandidates, 1)
	cand := info.ICECandidates[0]
	require.Equal(t, "127.0.0.1", cand.Address)
	require.Equal(t, "udp", cand.Protocol)
	require.GreaterOrEqual(t, cand.Port, uint16(42000))
	require.LessOrEqual(t, cand.Port, uint16(42100))

	require.Len(t, info.DTLSParameters.Fingerprints, 1)
	require.Equal(t, "sha-256", info.DTLSParameters.Fingerprints[0].Algorithm)
}

// TestAnnouncedIPOverridesListenIP covers deployments behind NAT where the
// advertised address differs from the bind address.
func TestAnnouncedIPOverridesListenIP(t *testing.T) {
	r := newTestRouter(t)
	tr, err := r.CreateTransport(core.TransportOptions{ListenIP: "0.0.0.0", AnnouncedIP: "203.0.113.7", PreferUDP: true})
	require.NoError(t, err)
	require.Equal(t, "203.0.113.7", tr.Info().ICECandidates[0].Address)
}

func TestConnectIsIdempotent(t *testing.T) {
	r := newTestRouter(t)
	tr, err := r.CreateTransport(testOpts)
	require.NoError(t, err)

	require.NoError(t, tr.Connect(core.DTLSParameters{Role: "client"}))
	require.NoError(t, tr.Connect(core.DTLSParameters{Role: "server"}), "second connect must be a no-op")
}

func TestProduceBeforeConnectFails(t *testing.T) {
	r := newTestRouter(t)
	tr, err := r.CreateTransport(testOpts)
	require.NoError(t, err)

	_, err = tr.Produce(domain.MediaKindAudio, core.RTPParameters{MimeType: "audio/opus", ClockRate: 48000, Channels: 2})
	require.ErrorIs(t, err, core.ErrNotConnected)
}

// TestCanConsume exercises the codec match: mime type is case-insensitive,
// clock rate and channels must agree.
func TestCanConsume(t *testing.T) {
	r := newTestRouter(t)
	_, p := produceAudio(t, r)

	testCases := []struct {
		name string
		caps []webrtc.RTPCodecCapability
		want bool
	}{
		{
			name: "exact match",
			caps: []webrtc.RTPCodecCapability{{MimeType: "audio/opus", ClockRate: 48000, Channels: 2}},
			want: true,
		},
		{
			name: "mime type case-insensitive",
			caps: []webrtc.RTPCodecCapability{{MimeType: "Audio/Opus", ClockRate: 48000, Channels: 2}},
			want: true,
		},
		{
			name: "clock rate mismatch",
			caps: []webrtc.RTPCodecCapability{{MimeType: "audio/opus", ClockRate: 44100, Channels: 2}},
			want: false,
		},
		{
			name: "channel mismatch",
			caps: []webrtc.RTPCodecCapability{{MimeType: "audio/opus", ClockRate: 48000, Channels: 1}},
			want: false,
		},
		{
			name: "wrong codec entirely",
			caps: []webrtc.RTPCodecCapability{{MimeType: "video/VP8", ClockRate: 90000}},
			want: false,
		},
		{
			name: "match among several",
			caps: testCodecs,
			want: true,
		},
		{
			name: "empty capability set",
			caps: nil,
			want: false,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := r.CanConsume(p.ID(), core.RTPCapabilities{Codecs: tc.caps})
			require.Equal(t, tc.want, got)
		})
	}

	require.False(t, r.CanConsume("unknown-producer", core.RTPCapabilities{Codecs: testCodecs}))
}

// TestConsumerLifecycle verifies the paused start, the SSRC rewrite and that
// packets only flow after resume.
func TestConsumerLifecycle(t *testing.T) {
	r := newTestRouter(t)
	_, p := produceAudio(t, r)

	recvTr, err := r.CreateTransport(testOpts)
	require.NoError(t, err)
	cons, err := recvTr.Consume(p.ID(), core.RTPCapabilities{Codecs: testCodecs})
	require.NoError(t, err)

	require.True(t, cons.Paused())
	require.Equal(t, p.ID(), cons.ProducerID())
	require.Equal(t, domain.MediaKindAudio, cons.Kind())
	require.NotZero(t, cons.RTPParameters().SSRC, "consumer gets its own SSRC")

	src := p.(*producer)
	sink := cons.(*consumer)

	// Paused: the packet is dropped but the consumer stays attached.
	require.NoError(t, src.WriteRTP(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1}}))
	select {
	case pkt := <-sink.ch:
		t.Fatalf("paused consumer received packet %d", pkt.SequenceNumber)
	default:
	}

	cons.Resume()
	require.False(t, cons.Paused())
	cons.Resume() // no-op

	require.NoError(t, src.WriteRTP(&rtp.Packet{Header: rtp.Header{SequenceNumber: 2}}))
	pkt, err := sink.ReadRTP()
	require.NoError(t, err)
	require.EqualValues(t, 2, pkt.SequenceNumber)
}

// TestConsumeFromClosedProducer verifies a closed or unknown upstream is
// rejected before a consumer is allocated.
func TestConsumeFromClosedProducer(t *testing.T) {
	r := newTestRouter(t)
	_, p := produceAudio(t, r)
	recvTr, err := r.CreateTransport(testOpts)
	require.NoError(t, err)

	p.Close()
	_, err = recvTr.Consume(p.ID(), core.RTPCapabilities{Codecs: testCodecs})
	require.ErrorIs(t, err, core.ErrProducerNotFound)

	_, err = recvTr.Consume("unknown", core.RTPCapabilities{Codecs: testCodecs})
	require.ErrorIs(t, err, core.ErrProducerNotFound)
}

// TestProducerCloseCascade verifies close ordering: dependent consumers are
// closed and their observers fired before the producer's own observers.
func TestProducerCloseCascade(t *testing.T) {
	r := newTestRouter(t)
	_, p := produceAudio(t, r)
	recvTr, err := r.CreateTransport(testOpts)
	require.NoError(t, err)
	cons, err := recvTr.Consume(p.ID(), core.RTPCapabilities{Codecs: testCodecs})
	require.NoError(t, err)

	var order []string
	cons.OnProducerClose(func() { order = append(order, "consumer") })
	p.OnClose(func() { order = append(order, "producer") })

	p.Close()
	require.True(t, p.Closed())
	require.Equal(t, []string{"consumer", "producer"}, order)

	// The consumer is gone: reads report EOF and duplicate close is safe.
	_, err = cons.(*consumer).ReadRTP()
	require.ErrorIs(t, err, io.EOF)
	cons.Close()
	p.Close()

	require.False(t, r.CanConsume(p.ID(), core.RTPCapabilities{Codecs: testCodecs}))
}

// TestKeyframeRequest verifies PLI plumbing: video producers forward the
// request to the ingest handler, audio producers ignore it.
func TestKeyframeRequest(t *testing.T) {
	r := newTestRouter(t)
	tr, err := r.CreateTransport(testOpts)
	require.NoError(t, err)
	connect(t, tr)

	video, err := tr.Produce(domain.MediaKindVideo, core.RTPParameters{MimeType: "video/VP8", ClockRate: 90000})
	require.NoError(t, err)
	audio, err := tr.Produce(domain.MediaKindAudio, core.RTPParameters{MimeType: "audio/opus", ClockRate: 48000, Channels: 2})
	require.NoError(t, err)

	var plis atomic.Int32
	video.(*producer).OnKeyframeRequest(func(pli *rtcp.PictureLossIndication) {
		require.Equal(t, video.(*producer).RTPParameters().SSRC, pli.MediaSSRC)
		plis.Add(1)
	})
	audio.(*producer).OnKeyframeRequest(func(*rtcp.PictureLossIndication) {
		t.Fatal("audio producer must ignore keyframe requests")
	})

	video.RequestKeyframe()
	audio.RequestKeyframe()
	require.EqualValues(t, 1, plis.Load())

	video.Close()
	video.RequestKeyframe()
	require.EqualValues(t, 1, plis.Load(), "closed producer must ignore keyframe requests")
}

// TestSlowConsumerDoesNotBlockFanOut verifies a full consumer queue drops
// packets instead of stalling the producer's write path.
func TestSlowConsumerDoesNotBlockFanOut(t *testing.T) {
	r := newTestRouter(t)
	_, p := produceAudio(t, r)
	recvTr, err := r.CreateTransport(testOpts)
	require.NoError(t, err)
	cons, err := recvTr.Consume(p.ID(), core.RTPCapabilities{Codecs: testCodecs})
	require.NoError(t, err)
	cons.Resume()

	src := p.(*producer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < consumerQueueLen*3; i++ {
			_ = src.WriteRTP(&rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fan-out blocked on a slow consumer")
	}
}

// TestTransportCloseTearsDownOwned verifies closing a transport closes its
// producers (cascading to remote consumers) and its own consumers.
func TestTransportCloseTearsDownOwned(t *testing.T) {
	r := newTestRouter(t)
	sendTr, p := produceAudio(t, r)
	recvTr, err := r.CreateTransport(testOpts)
	require.NoError(t, err)
	cons, err := recvTr.Consume(p.ID(), core.RTPCapabilities{Codecs: testCodecs})
	require.NoError(t, err)

	var producerClosed atomic.Bool
	cons.OnProducerClose(func() { producerClosed.Store(true) })

	sendTr.Close()
	require.True(t, p.Closed())
	require.True(t, producerClosed.Load())

	_, err = recvTr.Consume(p.ID(), core.RTPCapabilities{Codecs: testCodecs})
	require.ErrorIs(t, err, core.ErrProducerNotFound)
}

// TestClosedEngineRefusesRouters verifies teardown ordering at the top.
func TestClosedEngineRefusesRouters(t *testing.T) {
	e := New(42000, 42100)
	r, err := e.CreateRouter(testCodecs)
	require.NoError(t, err)
	tr, err := r.CreateTransport(testOpts)
	require.NoError(t, err)

	e.Close()
	_, err = e.CreateRouter(testCodecs)
	require.ErrorIs(t, err, core.ErrClosed)
	_, err = r.CreateTransport(testOpts)
	require.ErrorIs(t, err, core.ErrClosed)
	require.ErrorIs(t, tr.Connect(core.DTLSParameters{}), core.ErrClosed)
}
