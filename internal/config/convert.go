package config

import (
	"github.com/omochice/messi/internal/client"
	"github.com/omochice/messi/internal/server"
	"github.com/omochice/messi/internal/transport/ws"
	"github.com/rs/zerolog"
)

// Options returns the server runtime options for s.
func (s Server) Options(log zerolog.Logger) []server.Option {
	return []server.Option{
		server.WithCapacity(s.Capacity),
		server.WithBufferSize(s.BufferSize),
		server.WithKeepAlive(s.KeepAlive),
		server.WithLogger(log),
	}
}

// Options returns the client runtime options for c.
func (c Client) Options(log zerolog.Logger) []client.Option {
	return []client.Option{
		client.WithBufferSize(c.BufferSize),
		client.WithKeepAlive(c.KeepAlive),
		client.WithReconnect(c.Reconnect),
		client.WithLogger(log),
	}
}

// Options returns the bridge options for b.
func (b Bridge) Options(log zerolog.Logger) []ws.Option {
	return []ws.Option{
		ws.WithBufferSize(b.BufferSize),
		ws.WithHandshakeTimeout(b.HandshakeTimeout),
		ws.WithLogger(log),
	}
}
