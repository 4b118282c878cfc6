package client

import "expvar"

// clientMetrics record connection activity counters.
type clientMetrics struct {
	connects       expvar.Int
	connectFailed  expvar.Int
	disconnects    expvar.Int
	pingsSent      expvar.Int
	framesSent     expvar.Int
	framesReceived expvar.Int // user frames only

	emap *expvar.Map
}

func newClientMetrics() *clientMetrics {
	m := &clientMetrics{emap: new(expvar.Map)}
	m.emap.Set("connects", &m.connects)
	m.emap.Set("connects_failed", &m.connectFailed)
	m.emap.Set("disconnects", &m.disconnects)
	m.emap.Set("pings_sent", &m.pingsSent)
	m.emap.Set("frames_sent", &m.framesSent)
	m.emap.Set("frames_received", &m.framesReceived)
	return m
}
