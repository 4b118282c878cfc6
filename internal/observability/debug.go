package observability

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"

	"github.com/rs/zerolog"
)

// Publish registers each runtime counter map under its name in the expvar
// registry. Names already taken are skipped.
func Publish(vars map[string]*expvar.Map) {
	for name, m := range vars {
		if expvar.Get(name) == nil {
			expvar.Publish(name, m)
		}
	}
}

// ServeDebug serves the expvar registry at /debug/vars on addr until ctx
// ends.
func ServeDebug(ctx context.Context, addr string, log zerolog.Logger) error {
	lst, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serveDebug(ctx, lst, log)
}

func serveDebug(ctx context.Context, lst net.Listener, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	srv := &http.Server{Handler: mux}
	stop := context.AfterFunc(ctx, func() { srv.Close() })
	defer stop()

	log.Info().Str("addr", lst.Addr().String()).Msg("debug server listening")
	if err := srv.Serve(lst); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
