package ws

import "expvar"

type bridgeMetrics struct {
	sessions       expvar.Int
	sessionsActive expvar.Int
	upstreamFailed expvar.Int
	framesUp       expvar.Int // browser to server
	framesDown     expvar.Int // server to browser
	framesRejected expvar.Int

	emap *expvar.Map
}

func newBridgeMetrics() *bridgeMetrics {
	m := &bridgeMetrics{emap: new(expvar.Map)}
	m.emap.Set("sessions", &m.sessions)
	m.emap.Set("sessions_active", &m.sessionsActive)
	m.emap.Set("upstream_failed", &m.upstreamFailed)
	m.emap.Set("frames_up", &m.framesUp)
	m.emap.Set("frames_down", &m.framesDown)
	m.emap.Set("frames_rejected", &m.framesRejected)
	return m
}
