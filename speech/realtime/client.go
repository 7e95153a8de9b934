package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	opuscodec "github.com/jj11hh/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Audio format expected by SendAudio.
const (
	SampleRate = 48000
	Channels   = 2
)

var (
	ErrNotReady = errors.New("client not ready")
	ErrClosed   = errors.New("client closed")
)

// Client holds one WebRTC connection to the realtime transcription API.
type Client struct {
	// ─── Hot path (audio encoding) ───────────────────────────────────────────
	opusEncoder *opuscodec.Encoder
	audioTrack  *webrtc.TrackLocalStaticSample
	opusBuffer  []byte

	// ─── Synchronization ─────────────────────────────────────────────────────
	mu     sync.Mutex
	closed bool

	// ─── Connection state ────────────────────────────────────────────────────
	apiKey         string
	endpoint       string
	session        SessionConfig
	peerConnection *webrtc.PeerConnection
	msgChan        chan Event
	errChan        chan error
}

// ClientConfig configures a Client.
type ClientConfig struct {
	APIKey   string
	Endpoint string // SDP endpoint; empty uses CallsEndpoint
	Session  SessionConfig
}

// NewClient creates an unconnected Client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		apiKey:   cfg.APIKey,
		endpoint: cfg.Endpoint,
		session:  cfg.Session,
		msgChan:  make(chan Event, 100),
		errChan:  make(chan error, 1),
		// Max Opus packet size is 1275 bytes
		opusBuffer: make([]byte, 1275),
	}
}

// Connect mints a session token and negotiates the peer connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	token, err := CreateSession(ctx, c.apiKey, c.session)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	slog.Info("realtime transcription session created", "expires", time.Unix(token.ExpiresAt, 0))

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: SampleRate, Channels: Channels},
		"audio",
		"polyvox-mic",
	)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create audio track: %w", err)
	}
	if _, err = pc.AddTrack(track); err != nil {
		pc.Close()
		return fmt.Errorf("add audio track: %w", err)
	}

	enc, err := opuscodec.NewEncoder(SampleRate, Channels, opuscodec.AppVoIP)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create opus encoder: %w", err)
	}

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create data channel: %w", err)
	}

	c.mu.Lock()
	c.peerConnection = pc
	c.audioTrack = track
	c.opusEncoder = enc
	c.mu.Unlock()

	dc.OnOpen(func() { slog.Info("realtime data channel opened") })
	dc.OnMessage(c.handleDataMessage)

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateDisconnected {
			select {
			case c.errChan <- fmt.Errorf("ICE connection %s", state.String()):
			default:
			}
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-ctx.Done():
		return ctx.Err()
	}

	answer, err := ExchangeSDP(ctx, c.endpoint, pc.LocalDescription().SDP, token.Value)
	if err != nil {
		return fmt.Errorf("exchange SDP: %w", err)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (c *Client) handleDataMessage(msg webrtc.DataChannelMessage) {
	event, err := ParseEvent(msg.Data)
	if err != nil {
		slog.Warn("parse realtime event", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.msgChan <- event:
	case <-time.After(50 * time.Millisecond):
		slog.Warn("realtime event channel full", "type", event.eventType())
	}
}

// SendAudio encodes one frame of interleaved stereo float32 samples at
// 48 kHz and writes it to the audio track.
func (c *Client) SendAudio(samples []float32) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	track := c.audioTrack
	encoder := c.opusEncoder
	c.mu.Unlock()

	if track == nil || encoder == nil {
		return ErrNotReady
	}

	n, err := encoder.EncodeFloat32(samples, c.opusBuffer)
	if err != nil {
		return fmt.Errorf("opus encode: %w", err)
	}

	return track.WriteSample(media.Sample{
		Data:     c.opusBuffer[:n],
		Duration: time.Duration(len(samples)/Channels) * time.Second / SampleRate,
	})
}

// Messages returns parsed server events. It is closed by Close.
func (c *Client) Messages() <-chan Event { return c.msgChan }

// Errors returns connection failures.
func (c *Client) Errors() <-chan error { return c.errChan }

// Close shuts down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.peerConnection != nil {
		_ = c.peerConnection.Close()
	}
	close(c.msgChan)
	return nil
}
