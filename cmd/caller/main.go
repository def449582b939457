package main

import (
	"net/url"

	"github.com/geetika1312/VC/pkg/api"
	"github.com/geetika1312/VC/pkg/caller"
	"github.com/geetika1312/VC/pkg/com"
	"github.com/geetika1312/VC/pkg/config"
	"github.com/geetika1312/VC/pkg/logger"
	"github.com/geetika1312/VC/pkg/os"
)

var Version = "?"

func main() {
	conf, err := config.NewCallerConfig()
	if err != nil {
		logger.Default().Fatal().Err(err).Msg("config load failed")
	}
	config.ParseFlags(conf.WithFlags)

	log := logger.NewConsole(conf.Caller.Debug, "call", false)
	log.Info().Msgf("version %s", Version)

	address, err := url.Parse(conf.Caller.RelayAddress)
	if err != nil {
		log.Fatal().Err(err).Msg("bad relay address")
	}

	conn, err := com.NewConnector().NewClient(*address, log)
	if err != nil {
		log.Fatal().Err(err).Msg("couldn't reach the relay")
	}

	factory, err := caller.NewApiFactory(conf.Caller.Webrtc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("couldn't init webrtc")
	}

	c := caller.New(
		conn,
		factory.NewConnectionFactory(),
		func() (caller.MediaSource, error) { return caller.NewStaticSource(), nil },
		log,
	)
	if conf.Caller.AutoCall {
		c.OnPeerJoined = func(id, user string) {
			log.Info().Str("user", user).Msg("Calling")
			go func() {
				if err := c.Call(id); err != nil {
					log.Error().Err(err).Msg("call failed")
				}
			}()
		}
	}
	c.OnRemoteTrack = func(remote string, t caller.RemoteTrack) {
		log.Info().Str("peer", remote).Str("kind", t.Kind).Msg("Remote media")
	}

	conn.OnPacket(func(in api.In) { c.Handle(in) })
	conn.Listen()

	if err := c.Join(conf.Caller.User, conf.Caller.Room); err != nil {
		log.Fatal().Err(err).Msg("join failed")
	}

	select {
	case <-os.ExpectTermination():
	case <-conn.Wait():
	}
	c.Close()
	conn.Close()
}
