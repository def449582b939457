package main

import (
	"context"

	"github.com/geetika1312/VC/pkg/config"
	"github.com/geetika1312/VC/pkg/logger"
	"github.com/geetika1312/VC/pkg/os"
	"github.com/geetika1312/VC/pkg/relay"
)

var Version = "?"

func main() {
	conf, err := config.NewRelayConfig()
	if err != nil {
		logger.Default().Fatal().Err(err).Msg("config load failed")
	}
	config.ParseFlags(conf.WithFlags)

	log := logger.NewConsole(conf.Relay.Debug, "relay", false)
	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	r := relay.New(conf, log)
	if err := r.Start(); err != nil {
		log.Fatal().Err(err).Msg("couldn't start the relay")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		if err := r.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("service shutdown errors")
		}
	}()
	<-os.ExpectTermination()
	cancel()
}
