//go:build linux

// Program client joins a messi chat server. Lines read from stdin are sent as
// chat messages and every relayed line is printed. The client reconnects by
// itself when the server goes away.
package main

import (
	"bufio"
	"context"
	"expvar"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/creachadair/command"
	"github.com/creachadair/taskgroup"
	"github.com/omochice/messi/internal/chat"
	"github.com/omochice/messi/internal/config"
	"github.com/omochice/messi/internal/loop"
	"github.com/omochice/messi/internal/observability"
	"github.com/omochice/messi/pkg/protocol"
	"github.com/rs/zerolog"
)

var flags struct {
	Config    string
	Server    string
	User      string
	DebugAddr string
	LogLevel  string
}

func main() {
	root := &command.C{
		Name:  filepath.Base(os.Args[0]),
		Usage: "[flags]",
		Help: `Join a chat server.

Type a line to send it; "quit" or end of input leaves. Settings are read from
the [client] table of the configuration file, if one is given, and flags
override them.`,
		SetFlags: func(env *command.Env, fs *flag.FlagSet) {
			fs.StringVar(&flags.Config, "config", "", "Configuration file (TOML)")
			fs.StringVar(&flags.Server, "server", "", "Server URI, e.g. tcp://127.0.0.1:6000")
			fs.StringVar(&flags.User, "user", "", "User name to announce")
			fs.StringVar(&flags.DebugAddr, "debug-addr", "", "Serve expvar metrics on this address")
			fs.StringVar(&flags.LogLevel, "log-level", "", "Log level")
		},
		Run: runClient,
		Commands: []*command.C{
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runClient(env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("extra arguments: %q", env.Args)
	}
	cfg, err := config.Load(flags.Config)
	if err != nil {
		return err
	}
	cc := cfg.Client
	if flags.Server != "" {
		cc.Server = flags.Server
	}
	if flags.User != "" {
		cc.User = flags.User
	}
	if flags.DebugAddr != "" {
		cc.DebugAddr = flags.DebugAddr
	}
	if flags.LogLevel != "" {
		cc.LogLevel = flags.LogLevel
	}

	log, err := observability.InitLogger("client", cc.LogLevel)
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

	p := chat.NewParticipant(log)
	p.OnLine = func(user, text string) { fmt.Printf("[%s]: %s\n", user, text) }
	p.OnJoined = func() { fmt.Printf("*** joined %s as %s ***\n", cc.Server, cc.User) }
	p.OnLeft = func(reason protocol.DisconnectReason) {
		fmt.Printf("*** connection lost (%v), reconnecting ***\n", reason)
	}
	c, err := chat.NewClient(cc.User, cc.Server, lp, p, cc.Options(log)...)
	if err != nil {
		return err
	}
	p.Attach(c)
	if err := c.Start(); err != nil {
		return err
	}
	defer c.Close()

	// Stdin blocks without regard to ctx, so it is not part of the group.
	go readLines(os.Stdin, lp, p, cancel, log)

	g := taskgroup.New(cancel)
	g.Go(func() error { return lp.Run(ctx) })
	if cc.DebugAddr != "" {
		observability.Publish(map[string]*expvar.Map{"client": c.Metrics()})
		g.Go(func() error { return observability.ServeDebug(ctx, cc.DebugAddr, log) })
	}
	return g.Wait()
}

// readLines posts every input line to the loop thread as a chat message and
// calls done at end of input.
func readLines(r io.Reader, lp loop.Loop, p *chat.Participant, done func(), log zerolog.Logger) {
	defer done()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		switch text {
		case "":
			continue
		case "quit", "exit":
			return
		}
		lp.Post(func() {
			if err := p.Say(text); err != nil {
				log.Warn().Err(err).Msg("message not sent")
			}
		})
	}
	if err := sc.Err(); err != nil {
		log.Error().Err(err).Msg("read input")
	}
}
