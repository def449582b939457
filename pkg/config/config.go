package config

import (
	"flag"

	"github.com/spf13/pflag"
)

type (
	// RelayConfig is the root config of the signaling relay app.
	RelayConfig struct {
		Relay Relay
	}
	Relay struct {
		Server     Server
		Monitoring Monitoring
		Origin     string
		Debug      bool
	}
	Server struct {
		Address     string
		Https       bool
		HttpsCert   string
		HttpsKey    string
		HttpsDomain string
	}
	Monitoring struct {
		Port             int
		URLPrefix        string
		MetricEnabled    bool
		ProfilingEnabled bool
	}

	// CallerConfig is the root config of the headless client app.
	CallerConfig struct {
		Caller Caller
	}
	Caller struct {
		RelayAddress string
		Room         string
		User         string
		AutoCall     bool
		Webrtc       Webrtc
		Debug        bool
	}
	Webrtc struct {
		DisableDefaultInterceptors bool
		IceServers                 []IceServer
		IcePorts                   struct {
			Min uint16
			Max uint16
		}
		LogLevel int
	}
	IceServer struct {
		Urls       string `json:"urls,omitempty"`
		Username   string `json:"username,omitempty"`
		Credential string `json:"credential,omitempty"`
	}
)

func (m *Monitoring) IsEnabled() bool { return m.MetricEnabled || m.ProfilingEnabled }

func (w *Webrtc) HasPortRange() bool { return w.IcePorts.Min > 0 && w.IcePorts.Max > 0 }

func NewRelayConfig() (conf RelayConfig, err error) {
	err = LoadConfig(&conf, "")
	return
}

func NewCallerConfig() (conf CallerConfig, err error) {
	err = LoadConfig(&conf, "")
	return
}

func (c *RelayConfig) WithFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.Relay.Server.Address, "address", "a", c.Relay.Server.Address, "relay server address")
	fs.StringVarP(&c.Relay.Origin, "origin", "o", c.Relay.Origin, "allowed websocket origin, * allows any")
	fs.BoolVarP(&c.Relay.Monitoring.MetricEnabled, "monitoring.metric", "m", c.Relay.Monitoring.MetricEnabled, "enable Prometheus metrics")
	fs.BoolVarP(&c.Relay.Monitoring.ProfilingEnabled, "monitoring.pprof", "p", c.Relay.Monitoring.ProfilingEnabled, "enable Go pprof")
	fs.IntVar(&c.Relay.Monitoring.Port, "monitoring.port", c.Relay.Monitoring.Port, "monitoring server port")
	fs.BoolVar(&c.Relay.Debug, "debug", c.Relay.Debug, "debug logging")
}

func (c *CallerConfig) WithFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.Caller.RelayAddress, "relay", "r", c.Caller.RelayAddress, "relay websocket address")
	fs.StringVar(&c.Caller.Room, "room", c.Caller.Room, "room to join")
	fs.StringVarP(&c.Caller.User, "user", "u", c.Caller.User, "display identifier, e.g. an email")
	fs.BoolVar(&c.Caller.AutoCall, "call", c.Caller.AutoCall, "call the next peer that joins the room")
	fs.BoolVar(&c.Caller.Debug, "debug", c.Caller.Debug, "debug logging")
}

func ParseFlags(with func(fs *pflag.FlagSet)) {
	with(pflag.CommandLine)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()
}
