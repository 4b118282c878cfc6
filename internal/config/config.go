// Package config loads the TOML configuration shared by the messi commands.
//
// A file holds one table per command; keys left out keep their defaults:
//
//	log_level = "info"
//
//	[server]
//	listen = "tcp://0.0.0.0:6000"
//	capacity = 10
//	buffer_size = 1024
//	keep_alive = "3s"
//	debug_addr = "127.0.0.1:6060"
//
//	[client]
//	server = "tcp://127.0.0.1:6000"
//	user = "Erik"
//	keep_alive = "2s"
//	reconnect = "1s"
//
//	[bridge]
//	listen = "127.0.0.1:8080"
//	upstream = "tcp://127.0.0.1:6000"
//	handshake_timeout = "10s"
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/omochice/messi/internal/client"
	"github.com/omochice/messi/internal/server"
	"github.com/omochice/messi/internal/transport/ws"
)

// Server configures cmd/server.
type Server struct {
	Listen     string
	Capacity   int
	BufferSize int
	KeepAlive  time.Duration
	DebugAddr  string
	LogLevel   string
}

// Client configures cmd/client.
type Client struct {
	Server     string
	User       string
	BufferSize int
	KeepAlive  time.Duration
	Reconnect  time.Duration
	DebugAddr  string
	LogLevel   string
}

// Bridge configures cmd/websocket-bridge.
type Bridge struct {
	Listen           string
	Upstream         string
	BufferSize       int
	HandshakeTimeout time.Duration
	DebugAddr        string
	LogLevel         string
}

// Config is the content of a configuration file.
type Config struct {
	Server Server
	Client Client
	Bridge Bridge
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Listen:     "tcp://0.0.0.0:6000",
			Capacity:   server.DefaultCapacity,
			BufferSize: server.DefaultBufferSize,
			KeepAlive:  server.DefaultKeepAliveDeadline,
			LogLevel:   "info",
		},
		Client: Client{
			Server:     "tcp://127.0.0.1:6000",
			User:       defaultUser(),
			BufferSize: client.DefaultBufferSize,
			KeepAlive:  client.DefaultKeepAliveInterval,
			Reconnect:  client.DefaultReconnectInterval,
			LogLevel:   "info",
		},
		Bridge: Bridge{
			Listen:           "127.0.0.1:8080",
			Upstream:         "tcp://127.0.0.1:6000",
			BufferSize:       ws.DefaultBufferSize,
			HandshakeTimeout: ws.DefaultHandshakeTimeout,
			LogLevel:         "info",
		},
	}
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "anonymous"
}

type fileConfig struct {
	LogLevel string       `toml:"log_level"`
	Server   serverConfig `toml:"server"`
	Client   clientConfig `toml:"client"`
	Bridge   bridgeConfig `toml:"bridge"`
}

type serverConfig struct {
	Listen     string `toml:"listen"`
	Capacity   int    `toml:"capacity"`
	BufferSize int    `toml:"buffer_size"`
	KeepAlive  string `toml:"keep_alive"`
	DebugAddr  string `toml:"debug_addr"`
	LogLevel   string `toml:"log_level"`
}

type clientConfig struct {
	Server     string `toml:"server"`
	User       string `toml:"user"`
	BufferSize int    `toml:"buffer_size"`
	KeepAlive  string `toml:"keep_alive"`
	Reconnect  string `toml:"reconnect"`
	DebugAddr  string `toml:"debug_addr"`
	LogLevel   string `toml:"log_level"`
}

type bridgeConfig struct {
	Listen           string `toml:"listen"`
	Upstream         string `toml:"upstream"`
	BufferSize       int    `toml:"buffer_size"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	DebugAddr        string `toml:"debug_addr"`
	LogLevel         string `toml:"log_level"`
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := apply(&cfg, &raw, meta); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load for TOML text.
func Parse(text string) (Config, error) {
	cfg := Default()
	var raw fileConfig
	meta, err := toml.Decode(text, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := apply(&cfg, &raw, meta); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func apply(cfg *Config, raw *fileConfig, meta toml.MetaData) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("log_level") {
		lvl := strings.TrimSpace(raw.LogLevel)
		cfg.Server.LogLevel = lvl
		cfg.Client.LogLevel = lvl
		cfg.Bridge.LogLevel = lvl
	}

	s := &cfg.Server
	setString(meta, &s.Listen, raw.Server.Listen, "server", "listen")
	setPositive(meta, &s.Capacity, raw.Server.Capacity, "server", "capacity")
	setPositive(meta, &s.BufferSize, raw.Server.BufferSize, "server", "buffer_size")
	setString(meta, &s.DebugAddr, raw.Server.DebugAddr, "server", "debug_addr")
	setString(meta, &s.LogLevel, raw.Server.LogLevel, "server", "log_level")
	if err := setDuration(meta, &s.KeepAlive, raw.Server.KeepAlive, "server", "keep_alive"); err != nil {
		return err
	}

	c := &cfg.Client
	setString(meta, &c.Server, raw.Client.Server, "client", "server")
	setString(meta, &c.User, raw.Client.User, "client", "user")
	setPositive(meta, &c.BufferSize, raw.Client.BufferSize, "client", "buffer_size")
	setString(meta, &c.DebugAddr, raw.Client.DebugAddr, "client", "debug_addr")
	setString(meta, &c.LogLevel, raw.Client.LogLevel, "client", "log_level")
	if err := setDuration(meta, &c.KeepAlive, raw.Client.KeepAlive, "client", "keep_alive"); err != nil {
		return err
	}
	if err := setDuration(meta, &c.Reconnect, raw.Client.Reconnect, "client", "reconnect"); err != nil {
		return err
	}

	b := &cfg.Bridge
	setString(meta, &b.Listen, raw.Bridge.Listen, "bridge", "listen")
	setString(meta, &b.Upstream, raw.Bridge.Upstream, "bridge", "upstream")
	setPositive(meta, &b.BufferSize, raw.Bridge.BufferSize, "bridge", "buffer_size")
	setString(meta, &b.DebugAddr, raw.Bridge.DebugAddr, "bridge", "debug_addr")
	setString(meta, &b.LogLevel, raw.Bridge.LogLevel, "bridge", "log_level")
	return setDuration(meta, &b.HandshakeTimeout, raw.Bridge.HandshakeTimeout, "bridge", "handshake_timeout")
}

func setString(meta toml.MetaData, dst *string, v string, key ...string) {
	if meta.IsDefined(key...) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
}

func setPositive(meta toml.MetaData, dst *int, v int, key ...string) {
	if meta.IsDefined(key...) && v > 0 {
		*dst = v
	}
}

func setDuration(meta toml.MetaData, dst *time.Duration, v string, key ...string) error {
	if !meta.IsDefined(key...) {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("parse %s: %w", strings.Join(key, "."), err)
	}
	if d <= 0 {
		return fmt.Errorf("parse %s: duration must be positive", strings.Join(key, "."))
	}
	*dst = d
	return nil
}
