package chat_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/omochice/messi/internal/chat"
	"github.com/omochice/messi/internal/client"
	"github.com/omochice/messi/internal/framing"
	"github.com/omochice/messi/internal/loop/looptest"
	"github.com/omochice/messi/internal/transport/tcp/tcptest"
	"github.com/omochice/messi/pkg/protocol"
	"github.com/rs/zerolog"
)

type participantFixture struct {
	loop        *looptest.Loop
	dialer      *tcptest.Dialer
	participant *chat.Participant
	client      *chat.Client
	events      []string
}

func newParticipantFixture(t *testing.T, user string) *participantFixture {
	t.Helper()
	f := &participantFixture{
		loop:        looptest.New(),
		dialer:      new(tcptest.Dialer),
		participant: chat.NewParticipant(zerolog.Nop()),
	}
	f.participant.OnJoined = func() { f.events = append(f.events, "joined") }
	f.participant.OnLeft = func(r protocol.DisconnectReason) { f.events = append(f.events, "left:"+r.String()) }
	f.participant.OnLine = func(user, text string) { f.events = append(f.events, user+": "+text) }

	c, err := chat.NewClient(user, "tcp://127.0.0.1:6000", f.loop, f.participant, client.WithDialer(f.dialer))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	f.participant.Attach(c)
	f.client = c
	return f
}

func (f *participantFixture) checkEvents(t *testing.T, want ...string) {
	t.Helper()
	if diff := cmp.Diff(want, f.events); diff != "" {
		t.Errorf("events (-want, +got):\n%s", diff)
	}
	f.events = nil
}

func (f *participantFixture) checkArmed(t *testing.T, want ...time.Duration) {
	t.Helper()
	var got []time.Duration
	for _, tm := range f.loop.Armed() {
		got = append(got, tm.Interval())
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("armed timers (-want, +got):\n%s", diff)
	}
}

func connectReqFrame(t *testing.T, user string) []byte {
	t.Helper()
	return userFrame(t, chat.ClientToServer{
		Kind:       chat.ClientToServerConnectReq,
		ConnectReq: chat.ConnectReq{User: user},
	})
}

func TestParticipant_ConnectDisconnect(t *testing.T) {
	f := newParticipantFixture(t, "Erik")
	sock := tcptest.NewConn("127.0.0.1:6000")
	f.dialer.Succeed(sock)
	if err := f.client.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if diff := cmp.Diff(connectReqFrame(t, "Erik"), sock.Written()); diff != "" {
		t.Errorf("written on connect (-want, +got):\n%s", diff)
	}
	if f.participant.Joined() {
		t.Error("Joined() before connect_rsp")
	}

	sock.Feed(replyFrame(t, chat.ServerToClient{Kind: chat.ServerToClientConnectRsp}))
	f.loop.Ready(sock.Fd())
	f.checkEvents(t, "joined")
	if !f.participant.Joined() {
		t.Error("Joined() = false after connect_rsp")
	}

	sock.CloseRemote()
	f.loop.Ready(sock.Fd())
	f.checkEvents(t, "left:CONNECTION_CLOSED")
	if f.participant.Joined() {
		t.Error("Joined() after disconnect")
	}
	if f.client.State() != framing.Disconnected {
		t.Errorf("State() = %v, want disconnected", f.client.State())
	}
	if !sock.Closed() {
		t.Error("socket not closed")
	}
	f.checkArmed(t, time.Second)
}

func TestParticipant_ReconnectAfterRefused(t *testing.T) {
	f := newParticipantFixture(t, "Kalle")
	f.dialer.Fail(tcptest.ErrRefused)
	if err := f.client.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if f.client.State() != framing.Disconnected {
		t.Errorf("State() = %v, want disconnected", f.client.State())
	}
	f.checkArmed(t, time.Second)
	f.checkEvents(t)

	sock := tcptest.NewConn("127.0.0.1:6000")
	f.dialer.Succeed(sock)
	f.loop.Advance(time.Second)

	if f.client.State() != framing.Connected {
		t.Fatalf("State() = %v, want connected", f.client.State())
	}
	if got := len(f.dialer.Dialed()); got != 2 {
		t.Errorf("dial attempts = %d, want 2", got)
	}
	if diff := cmp.Diff(connectReqFrame(t, "Kalle"), sock.Written()); diff != "" {
		t.Errorf("written on reconnect (-want, +got):\n%s", diff)
	}
	f.checkArmed(t, 2*time.Second)
}

func TestParticipant_Say(t *testing.T) {
	f := newParticipantFixture(t, "Fia")
	if err := f.participant.Say("too early"); !errors.Is(err, chat.ErrNotJoined) {
		t.Errorf("Say() before joining error = %v, want ErrNotJoined", err)
	}

	sock := tcptest.NewConn("127.0.0.1:6000")
	f.dialer.Succeed(sock)
	if err := f.client.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sock.Feed(replyFrame(t, chat.ServerToClient{Kind: chat.ServerToClientConnectRsp}))
	f.loop.Ready(sock.Fd())
	sock.Written()

	if err := f.participant.Say("Hello."); err != nil {
		t.Fatalf("Say() error = %v", err)
	}
	want := userFrame(t, chat.ClientToServer{
		Kind:       chat.ClientToServerMessageInd,
		MessageInd: chat.MessageInd{User: "Fia", Text: "Hello."},
	})
	if diff := cmp.Diff(want, sock.Written()); diff != "" {
		t.Errorf("written (-want, +got):\n%s", diff)
	}

	sock.Feed(replyFrame(t, chat.ServerToClient{
		Kind:       chat.ServerToClientMessageInd,
		MessageInd: chat.MessageInd{User: "Erik", Text: "Hej!"},
	}))
	f.loop.Ready(sock.Fd())
	f.checkEvents(t, "joined", "Erik: Hej!")
}

func TestParticipant_StopIsSilent(t *testing.T) {
	f := newParticipantFixture(t, "Erik")
	sock := tcptest.NewConn("127.0.0.1:6000")
	f.dialer.Succeed(sock)
	if err := f.client.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.client.Stop()
	f.checkEvents(t)
	f.checkArmed(t)
	if !sock.Closed() {
		t.Error("socket not closed")
	}
	if err := f.client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
