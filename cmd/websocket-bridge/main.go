// Program websocket-bridge lets WebSocket peers reach a messi server. Each
// binary WebSocket message carries exactly one frame.
package main

import (
	"context"
	"expvar"
	"flag"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/creachadair/command"
	"github.com/creachadair/taskgroup"
	"github.com/omochice/messi/internal/config"
	"github.com/omochice/messi/internal/observability"
	"github.com/omochice/messi/internal/transport/ws"
	"github.com/rs/zerolog"
)

var flags struct {
	Config    string
	Listen    string
	Upstream  string
	DebugAddr string
	LogLevel  string
}

func main() {
	root := &command.C{
		Name:  filepath.Base(os.Args[0]),
		Usage: "[flags]",
		Help: `Relay WebSocket sessions to a chat server.

Settings are read from the [bridge] table of the configuration file, if one
is given, and flags override them.`,
		SetFlags: func(env *command.Env, fs *flag.FlagSet) {
			fs.StringVar(&flags.Config, "config", "", "Configuration file (TOML)")
			fs.StringVar(&flags.Listen, "listen", "", "WebSocket listen address, e.g. 127.0.0.1:8080")
			fs.StringVar(&flags.Upstream, "upstream", "", "Server URI, e.g. tcp://127.0.0.1:6000")
			fs.StringVar(&flags.DebugAddr, "debug-addr", "", "Serve expvar metrics on this address")
			fs.StringVar(&flags.LogLevel, "log-level", "", "Log level")
		},
		Run: runBridge,
		Commands: []*command.C{
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runBridge(env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("extra arguments: %q", env.Args)
	}
	cfg, err := config.Load(flags.Config)
	if err != nil {
		return err
	}
	bc := cfg.Bridge
	if flags.Listen != "" {
		bc.Listen = flags.Listen
	}
	if flags.Upstream != "" {
		bc.Upstream = flags.Upstream
	}
	if flags.DebugAddr != "" {
		bc.DebugAddr = flags.DebugAddr
	}
	if flags.LogLevel != "" {
		bc.LogLevel = flags.LogLevel
	}

	log, err := observability.InitLogger("websocket-bridge", bc.LogLevel)
	if err != nil {
		return err
	}
	bridge, err := ws.NewBridge(bc.Upstream, bc.Options(log)...)
	if err != nil {
		return err
	}
	lst, err := net.Listen("tcp", bc.Listen)
	if err != nil {
		return err
	}
	log.Info().Str("addr", lst.Addr().String()).Stringer("upstream", bridge.Upstream()).Msg("bridge listening")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return serve(ctx, bridge, lst, bc.DebugAddr, log)
}

// serve runs the bridge and the optional debug server until ctx ends or
// either of them fails, which stops the other.
func serve(ctx context.Context, bridge *ws.Bridge, lst net.Listener, debugAddr string, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := taskgroup.New(cancel)
	g.Go(func() error { return bridge.Serve(ctx, lst) })
	if debugAddr != "" {
		observability.Publish(map[string]*expvar.Map{"bridge": bridge.Metrics()})
		g.Go(func() error { return observability.ServeDebug(ctx, debugAddr, log) })
	}
	return g.Wait()
}
