package server

import "expvar"

// serverMetrics record server activity counters.
type serverMetrics struct {
	accepted       expvar.Int
	rejected       expvar.Int // refused because every slot was in use
	disconnected   expvar.Int
	framesReceived expvar.Int
	framesSent     expvar.Int
	broadcasts     expvar.Int
	writeFailed    expvar.Int
	clients        expvar.Int

	emap *expvar.Map
}

func newServerMetrics() *serverMetrics {
	m := &serverMetrics{emap: new(expvar.Map)}
	m.emap.Set("clients_accepted", &m.accepted)
	m.emap.Set("clients_rejected", &m.rejected)
	m.emap.Set("clients_disconnected", &m.disconnected)
	m.emap.Set("clients_connected", &m.clients)
	m.emap.Set("frames_received", &m.framesReceived)
	m.emap.Set("frames_sent", &m.framesSent)
	m.emap.Set("broadcasts", &m.broadcasts)
	m.emap.Set("writes_failed", &m.writeFailed)
	return m
}
