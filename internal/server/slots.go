package server

import (
	"fmt"

	"github.com/omochice/messi/internal/framing"
	"github.com/omochice/messi/internal/loop"
	"github.com/omochice/messi/pkg/protocol"
)

// ClientID identifies a connected client. IDs are never reused: once a
// client is destroyed its ID stays invalid even after the slot is taken by
// another connection.
type ClientID struct {
	index int
	gen   uint32
}

// Index returns the slot index of the client.
func (id ClientID) Index() int { return id.index }

func (id ClientID) String() string { return fmt.Sprintf("client-%d.%d", id.index, id.gen) }

const nilSlot = -1

// slot is the per-connection record. A slot is either on the free list,
// linked through next, or on the used list, linked through next and prev.
type slot struct {
	gen    uint32
	inUse  bool
	next   int
	prev   int
	conn   *framing.Conn
	timer  loop.Timer
	frames framing.Handler
	remote string
}

// slotTable is a fixed arena of slots. Allocation and release are O(1) and
// never allocate memory.
type slotTable struct {
	slots []slot
	free  int
	used  int
	count int
}

func newSlotTable(capacity, bufSize int) *slotTable {
	t := &slotTable{slots: make([]slot, capacity), free: nilSlot, used: nilSlot}
	for i := capacity - 1; i >= 0; i-- {
		t.slots[i] = slot{
			next: t.free,
			prev: nilSlot,
			conn: framing.New(bufSize, protocol.MessageTypeClientToServerUser),
		}
		t.free = i
	}
	return t
}

// alloc moves a slot from the free list to the head of the used list. It
// reports false if every slot is in use.
func (t *slotTable) alloc() (ClientID, bool) {
	i := t.free
	if i == nilSlot {
		return ClientID{}, false
	}
	s := &t.slots[i]
	t.free = s.next

	s.inUse = true
	s.prev = nilSlot
	s.next = t.used
	if t.used != nilSlot {
		t.slots[t.used].prev = i
	}
	t.used = i
	t.count++
	return ClientID{index: i, gen: s.gen}, true
}

// release moves the slot of id back to the free list and invalidates id.
func (t *slotTable) release(id ClientID) {
	s, ok := t.lookup(id)
	if !ok {
		return
	}
	if s.prev != nilSlot {
		t.slots[s.prev].next = s.next
	} else {
		t.used = s.next
	}
	if s.next != nilSlot {
		t.slots[s.next].prev = s.prev
	}

	s.inUse = false
	s.gen++
	s.timer = nil
	s.frames = nil
	s.remote = ""
	s.prev = nilSlot
	s.next = t.free
	t.free = id.index
	t.count--
}

// lookup returns the slot of a live client.
func (t *slotTable) lookup(id ClientID) (*slot, bool) {
	if id.index < 0 || id.index >= len(t.slots) {
		return nil, false
	}
	s := &t.slots[id.index]
	if !s.inUse || s.gen != id.gen {
		return nil, false
	}
	return s, true
}

// id returns the current ID of the slot at index i.
func (t *slotTable) id(i int) ClientID { return ClientID{index: i, gen: t.slots[i].gen} }

// each calls fn for every live client in used-list order. The successor is
// captured before fn runs, so fn may release the client it is given.
func (t *slotTable) each(fn func(ClientID)) {
	for i := t.used; i != nilSlot; {
		next := t.slots[i].next
		fn(t.id(i))
		i = next
	}
}
