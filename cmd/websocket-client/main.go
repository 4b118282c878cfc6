// Program websocket-client joins a messi chat server through a
// websocket-bridge.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/messi/internal/chat"
	"github.com/omochice/messi/internal/client"
	"github.com/omochice/messi/internal/observability"
	"github.com/omochice/messi/internal/transport/ws"
	"github.com/omochice/messi/pkg/protocol"
	"github.com/rs/zerolog"
)

var flags struct {
	Server   string
	User     string
	LogLevel string
}

func main() {
	root := &command.C{
		Name:  filepath.Base(os.Args[0]),
		Usage: "[flags]",
		Help: `Join a chat server through a WebSocket bridge.

Type a line to send it; "quit" or end of input leaves.`,
		SetFlags: func(env *command.Env, fs *flag.FlagSet) {
			fs.StringVar(&flags.Server, "server", "ws://127.0.0.1:8080/", "Bridge URL")
			fs.StringVar(&flags.User, "user", "", "User name to announce")
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
	if flags.User == "" {
		return env.Usagef("a -user is required")
	}
	log, err := observability.InitLogger("websocket-client", flags.LogLevel)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, err := ws.Dial(ctx, flags.Server)
	if err != nil {
		return err
	}
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	if err := send(c, chat.ClientToServer{
		Kind:       chat.ClientToServerConnectReq,
		ConnectReq: chat.ConnectReq{User: flags.User},
	}); err != nil {
		return err
	}

	// The server drops clients that stop sending PING.
	go func() {
		t := time.NewTicker(client.DefaultKeepAliveInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := c.Send(protocol.MessageTypePing, nil); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		defer cancel()
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			text := strings.TrimSpace(sc.Text())
			if text == "" {
				continue
			}
			if text == "quit" || text == "exit" {
				return
			}
			if err := send(c, chat.ClientToServer{
				Kind:       chat.ClientToServerMessageInd,
				MessageInd: chat.MessageInd{User: flags.User, Text: text},
			}); err != nil {
				log.Error().Err(err).Msg("message not sent")
				return
			}
		}
	}()

	err = receive(c, log)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func send(c *ws.Client, m chat.ClientToServer) error {
	payload, err := chat.ClientCodec{}.Encode(nil, m)
	if err != nil {
		return err
	}
	return c.Send(protocol.MessageTypeClientToServerUser, payload)
}

// receive prints relayed messages until the session ends.
func receive(c *ws.Client, log zerolog.Logger) error {
	for {
		frame, err := c.ReadFrame()
		if err != nil {
			var ce wsutil.ClosedError
			if errors.As(err, &ce) {
				fmt.Printf("*** bridge closed the session: %v %s ***\n", ce.Code, ce.Reason)
				return nil
			}
			return err
		}
		h, err := protocol.CheckFrame(frame, len(frame))
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if h.Type != protocol.MessageTypeServerToClientUser {
			continue
		}
		m, err := chat.ClientCodec{}.Decode(frame[protocol.HeaderSize:])
		if err != nil {
			log.Warn().Err(err).Msg("dropping undecodable message")
			continue
		}
		switch m.Kind {
		case chat.ServerToClientConnectRsp:
			fmt.Printf("*** joined as %s ***\n", flags.User)
		case chat.ServerToClientMessageInd:
			fmt.Printf("[%s]: %s\n", m.MessageInd.User, m.MessageInd.Text)
		}
	}
}
