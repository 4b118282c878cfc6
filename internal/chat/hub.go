package chat

import (
	"sort"

	"github.com/omochice/messi/internal/server"
	"github.com/omochice/messi/pkg/protocol"
	"github.com/rs/zerolog"
)

// Hub is the chat room served by a Server. It answers each ConnectReq with a
// ConnectRsp and relays every MessageInd to all connected clients, the sender
// included.
type Hub struct {
	users map[server.ClientID]string
	log   zerolog.Logger
}

// NewHub creates a new Hub. The logger may be zerolog.Nop().
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		users: make(map[server.ClientID]string),
		log:   log,
	}
}

// OnClientConnected implements ServerHandler.
func (h *Hub) OnClientConnected(s *Server, id server.ClientID) {
	h.log.Debug().Stringer("client", id).Int("clients", s.ClientCount()).Msg("client joined hub")
}

// OnClientDisconnected implements ServerHandler.
func (h *Hub) OnClientDisconnected(s *Server, id server.ClientID, reason protocol.DisconnectReason) {
	user, ok := h.users[id]
	delete(h.users, id)
	if ok {
		h.log.Info().Str("user", user).Stringer("reason", reason).Msg("user left")
	}
}

// OnConnectReq implements ServerHandler.
func (h *Hub) OnConnectReq(s *Server, id server.ClientID, m *ConnectReq) {
	h.users[id] = m.User
	h.log.Info().Str("user", m.User).Stringer("client", id).Msg("user connected")

	s.InitConnectRsp()
	if err := s.Reply(); err != nil {
		h.log.Warn().Err(err).Str("user", m.User).Msg("connect response not sent")
	}
}

// OnMessageInd implements ServerHandler.
func (h *Hub) OnMessageInd(s *Server, id server.ClientID, m *MessageInd) {
	out := s.InitMessageInd()
	out.User = m.User
	out.Text = m.Text
	if err := s.Broadcast(); err != nil {
		h.log.Warn().Err(err).Str("user", m.User).Msg("message not relayed")
	}
}

// User returns the name announced by client id.
func (h *Hub) User(id server.ClientID) (string, bool) {
	user, ok := h.users[id]
	return user, ok
}

// Users returns the names of the announced users in sorted order.
func (h *Hub) Users() []string {
	users := make([]string, 0, len(h.users))
	for _, u := range h.users {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// ClientCount returns number of announced users.
func (h *Hub) ClientCount() int { return len(h.users) }
