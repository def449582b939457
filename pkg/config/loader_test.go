package config

import (
	"os"
	"testing"
)

func TestConfigFileDefaults(t *testing.T) {
	conf, err := NewRelayConfig()
	if err != nil {
		t.Fatal(err)
	}
	if conf.Relay.Server.Address == "" {
		t.Error("no server address in the default config")
	}
	if conf.Relay.Origin == "" {
		t.Error("no origin in the default config")
	}

	cc, err := NewCallerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cc.Caller.RelayAddress == "" {
		t.Error("no relay address in the default config")
	}
	if len(cc.Caller.Webrtc.IceServers) == 0 {
		t.Error("no ICE servers in the default config")
	}
}

func TestConfigEnv(t *testing.T) {
	_ = os.Setenv("VC_RELAY_SERVER_ADDRESS", ":9999")
	_ = os.Setenv("VC_RELAY_DEBUG", "true")
	defer func() {
		_ = os.Unsetenv("VC_RELAY_SERVER_ADDRESS")
		_ = os.Unsetenv("VC_RELAY_DEBUG")
	}()

	var out RelayConfig
	if err := LoadConfig(&out, ""); err != nil {
		t.Fatal(err)
	}
	if out.Relay.Server.Address != ":9999" {
		t.Errorf("%v is not :9999", out.Relay.Server.Address)
	}
	if !out.Relay.Debug {
		t.Error("debug flag not read from the environment")
	}
}

func TestMonitoringIsEnabled(t *testing.T) {
	m := Monitoring{}
	if m.IsEnabled() {
		t.Error("empty monitoring should be off")
	}
	m.MetricEnabled = true
	if !m.IsEnabled() {
		t.Error("metrics should switch monitoring on")
	}
}

func TestWebrtcPortRange(t *testing.T) {
	var w Webrtc
	if w.HasPortRange() {
		t.Error("zero range should be off")
	}
	w.IcePorts.Min, w.IcePorts.Max = 40000, 41000
	if !w.HasPortRange() {
		t.Error("non-zero range should be on")
	}
}
