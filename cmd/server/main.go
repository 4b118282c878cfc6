//go:build linux

// Program server runs the messi chat server: every connected client may
// announce a user and every line it sends is relayed to all clients.
package main

import (
	"context"
	"expvar"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/creachadair/command"
	"github.com/creachadair/taskgroup"
	"github.com/omochice/messi/internal/chat"
	"github.com/omochice/messi/internal/config"
	"github.com/omochice/messi/internal/loop"
	"github.com/omochice/messi/internal/observability"
)

var flags struct {
	Config    string
	Listen    string
	Capacity  int
	DebugAddr string
	LogLevel  string
}

func main() {
	root := &command.C{
		Name:  filepath.Base(os.Args[0]),
		Usage: "[flags]",
		Help: `Run the chat server.

Settings are read from the [server] table of the configuration file, if one
is given, and flags override them.`,
		SetFlags: func(env *command.Env, fs *flag.FlagSet) {
			fs.StringVar(&flags.Config, "config", "", "Configuration file (TOML)")
			fs.StringVar(&flags.Listen, "listen", "", "Listen URI, e.g. tcp://0.0.0.0:6000")
			fs.IntVar(&flags.Capacity, "capacity", 0, "Maximum number of clients")
			fs.StringVar(&flags.DebugAddr, "debug-addr", "", "Serve expvar metrics on this address")
			fs.StringVar(&flags.LogLevel, "log-level", "", "Log level")
		},
		Run: runServer,
		Commands: []*command.C{
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runServer(env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("extra arguments: %q", env.Args)
	}
	cfg, err := config.Load(flags.Config)
	if err != nil {
		return err
	}
	sc := cfg.Server
	if flags.Listen != "" {
		sc.Listen = flags.Listen
	}
	if flags.Capacity > 0 {
		sc.Capacity = flags.Capacity
	}
	if flags.DebugAddr != "" {
		sc.DebugAddr = flags.DebugAddr
	}
	if flags.LogLevel != "" {
		sc.LogLevel = flags.LogLevel
	}

	log, err := observability.InitLogger("server", sc.LogLevel)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lp, err := loop.NewEpoll(log)
	if err != nil {
		return err
	}
	defer lp.Close()

	hub := chat.NewHub(log)
	srv, err := chat.NewServer(sc.Listen, lp, hub, sc.Options(log)...)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()
	log.Info().Stringer("addr", srv.Addr()).Int("capacity", sc.Capacity).Msg("chat server listening")

	g := taskgroup.New(cancel)
	g.Go(func() error { return lp.Run(ctx) })
	if sc.DebugAddr != "" {
		observability.Publish(map[string]*expvar.Map{"server": srv.Metrics()})
		g.Go(func() error { return observability.ServeDebug(ctx, sc.DebugAddr, log) })
	}
	err = g.Wait()
	log.Info().Int("clients", srv.ClientCount()).Msg("chat server stopped")
	return err
}
