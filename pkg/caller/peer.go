package caller

import (
	"sync"
	"time"

	"github.com/geetika1312/VC/pkg/config"
	"github.com/geetika1312/VC/pkg/logger"
	"github.com/goccy/go-json"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// ApiFactory builds pion peer connections with the shared engine setup.
type ApiFactory struct {
	api  *webrtc.API
	conf webrtc.Configuration
	log  *logger.Logger
}

func NewApiFactory(conf config.Webrtc, log *logger.Logger) (*ApiFactory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	if !conf.DisableDefaultInterceptors {
		if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
			return nil, err
		}
	}
	customLogger := logger.NewPionLogger(log, conf.LogLevel)
	s := webrtc.SettingEngine{LoggerFactory: customLogger}
	if conf.HasPortRange() {
		if err := s.SetEphemeralUDPPortRange(conf.IcePorts.Min, conf.IcePorts.Max); err != nil {
			return nil, err
		}
	}

	c := webrtc.Configuration{ICEServers: []webrtc.ICEServer{}}
	for _, server := range conf.IceServers {
		c.ICEServers = append(c.ICEServers, webrtc.ICEServer{
			URLs:       []string{server.Urls},
			Username:   server.Username,
			Credential: server.Credential,
		})
	}

	return &ApiFactory{
		api:  webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(s)),
		conf: c,
		log:  log,
	}, nil
}

// NewConnectionFactory adapts the factory to the orchestrator.
func (f *ApiFactory) NewConnectionFactory() ConnectionFactory {
	return func(remote string) (Connection, error) {
		conn, err := f.api.NewPeerConnection(f.conf)
		if err != nil {
			return nil, err
		}
		return newPeer(conn, f.log.Extend(f.log.With().Str("peer", remote))), nil
	}
}

// Peer drives one pion connection. The protocol carries no separate
// candidate messages, so descriptions are produced after ICE gathering
// completes and carry the candidates inline.
type Peer struct {
	conn *webrtc.PeerConnection
	log  *logger.Logger

	mu     sync.Mutex
	tracks map[string]*localTrack
	done   chan struct{}
}

type localTrack struct {
	src    *Track
	sample *webrtc.TrackLocalStaticSample
}

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = 33 * time.Millisecond
)

func newPeer(conn *webrtc.PeerConnection, log *logger.Logger) *Peer {
	return &Peer{conn: conn, log: log, tracks: map[string]*localTrack{}, done: make(chan struct{})}
}

func (p *Peer) Offer() (SDP, error) {
	offer, err := p.conn.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gathered := webrtc.GatheringCompletePromise(p.conn)
	if err = p.conn.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	<-gathered
	return json.Marshal(p.conn.LocalDescription())
}

func (p *Peer) Answer(offer SDP) (SDP, error) {
	var remote webrtc.SessionDescription
	if err := json.Unmarshal(offer, &remote); err != nil {
		return nil, err
	}
	// a rolled back own offer may still be pending (polite side of a
	// collision)
	if p.conn.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		if err := p.conn.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			return nil, err
		}
	}
	if err := p.conn.SetRemoteDescription(remote); err != nil {
		return nil, err
	}
	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	gathered := webrtc.GatheringCompletePromise(p.conn)
	if err = p.conn.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gathered
	return json.Marshal(p.conn.LocalDescription())
}

func (p *Peer) Accept(answer SDP) error {
	var remote webrtc.SessionDescription
	if err := json.Unmarshal(answer, &remote); err != nil {
		return err
	}
	return p.conn.SetRemoteDescription(remote)
}

func (p *Peer) AttachTracks(src MediaSource) error {
	for _, t := range src.Tracks() {
		mime := webrtc.MimeTypeOpus
		frame := audioFrame
		if t.Kind() == VideoKind {
			mime = webrtc.MimeTypeVP8
			frame = videoFrame
		}
		sample, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: mime}, t.Id(), t.Kind())
		if err != nil {
			return err
		}
		sender, err := p.conn.AddTrack(sample)
		if err != nil {
			return err
		}
		go drainRTCP(sender)
		lt := &localTrack{src: t, sample: sample}
		p.mu.Lock()
		p.tracks[t.Kind()] = lt
		p.mu.Unlock()
		go p.pump(lt, frame)
		p.log.Debug().Msgf("Added [%s] track", mime)
	}
	return nil
}

func (p *Peer) SetEnabled(kind string, enabled bool) {
	p.mu.Lock()
	lt := p.tracks[kind]
	p.mu.Unlock()
	if lt != nil {
		lt.src.SetEnabled(enabled)
	}
}

func (p *Peer) OnNegotiationNeeded(fn func()) { p.conn.OnNegotiationNeeded(fn) }

func (p *Peer) OnRemoteTrack(fn func(t RemoteTrack)) {
	p.conn.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(RemoteTrack{Id: tr.ID(), Kind: tr.Kind().String()})
		buf := make([]byte, 1500)
		for {
			if _, _, err := tr.Read(buf); err != nil {
				return
			}
		}
	})
}

func (p *Peer) Close() error {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	return p.conn.Close()
}

// pump keeps the track alive with blank samples while it is enabled.
// A disabled track goes silent but stays attached.
func (p *Peer) pump(lt *localTrack, frame time.Duration) {
	ticker := time.NewTicker(frame)
	defer ticker.Stop()
	blank := make([]byte, 16)
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if !lt.src.Enabled() {
				continue
			}
			if err := lt.sample.WriteSample(media.Sample{Data: blank, Duration: frame}); err != nil {
				return
			}
		}
	}
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
