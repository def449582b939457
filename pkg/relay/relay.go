package relay

import (
	"context"
	"net/http"

	"github.com/geetika1312/VC/pkg/api"
	"github.com/geetika1312/VC/pkg/com"
	"github.com/geetika1312/VC/pkg/config"
	"github.com/geetika1312/VC/pkg/logger"
	"github.com/geetika1312/VC/pkg/monitoring"
	"github.com/geetika1312/VC/pkg/network/httpx"
	"github.com/geetika1312/VC/pkg/service"
)

// Relay is the signaling server application.
type Relay struct {
	conf     config.RelayConfig
	log      *logger.Logger
	hub      *Hub
	services service.Group
}

func New(conf config.RelayConfig, log *logger.Logger) *Relay {
	var metrics *Metrics
	if conf.Relay.Monitoring.MetricEnabled {
		metrics = NewMetrics()
	}
	return &Relay{conf: conf, log: log, hub: NewHub(log, metrics)}
}

func (r *Relay) Start() error {
	conf := r.conf.Relay

	connector := com.NewConnector(com.WithOrigin(conf.Origin))

	opts := []httpx.Option{httpx.WithLogger(r.log)}
	if conf.Server.Https {
		opts = append(opts, httpx.WithTLS(conf.Server.HttpsCert, conf.Server.HttpsKey, conf.Server.HttpsDomain))
	}
	server, err := httpx.NewServer(
		conf.Server.Address,
		func(*httpx.Server) httpx.Handler {
			h := httpx.NewServeMux()
			h.HandleFunc("/ws", func(w http.ResponseWriter, rq *http.Request) {
				r.handleConnection(connector, w, rq)
			})
			return h
		},
		opts...,
	)
	if err != nil {
		return err
	}

	r.services.Add(server)
	if conf.Monitoring.IsEnabled() {
		if m := monitoring.New(conf.Monitoring, "relay", r.log); m != nil {
			r.services.Add(m)
		}
	}
	r.services.Start()
	return nil
}

func (r *Relay) Shutdown(ctx context.Context) error { return r.services.Shutdown(ctx) }

// handleConnection upgrades one websocket request, registers the
// endpoint and pumps its packets into the hub until it goes away.
func (r *Relay) handleConnection(connector *com.Connector, w http.ResponseWriter, rq *http.Request) {
	client, err := connector.NewServer(w, rq, r.log)
	if err != nil {
		r.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	endpoint := NewEndpoint(client, r.log)
	client.OnPacket(func(in api.In) { r.hub.HandlePacket(endpoint, in) })
	r.hub.Connect(endpoint)
	client.Listen()
	<-client.Wait()
	r.hub.Disconnect(endpoint)
}
