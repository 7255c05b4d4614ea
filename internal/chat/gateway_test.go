package chat

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sarahkellett/chatrelay/internal/message"
)

// capture records every delivery the gateway dispatches.
type capture struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (c *capture) Dispatch(deliveries []Delivery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries = append(c.deliveries, deliveries...)
}

func (c *capture) all() []Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Delivery, len(c.deliveries))
	copy(out, c.deliveries)
	return out
}

func (c *capture) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries = nil
}

func newTestGateway(t *testing.T) (*Gateway, *capture) {
	t.Helper()
	rooms, err := NewRooms([]string{"General", "News", "Sport", "Engineering"}, "General")
	if err != nil {
		t.Fatalf("rooms error: %v", err)
	}
	out := &capture{}
	return NewGateway(rooms, message.NewStore(50), out), out
}

func presenceOf(t *testing.T, d Delivery) []string {
	t.Helper()
	p, ok := d.Payload.(PresencePayload)
	if !ok {
		t.Fatalf("expected PresencePayload, got %T", d.Payload)
	}
	return p.Users
}

func TestConnectBroadcastsPresence(t *testing.T) {
	g, out := newTestGateway(t)

	g.Connect("c1", "alice")

	ds := out.all()
	if len(ds) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(ds))
	}
	if !ds[0].Broadcast || ds[0].Event != EventOnlineUsers {
		t.Fatalf("expected online_users broadcast, got %+v", ds[0])
	}
	if got := presenceOf(t, ds[0]); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("expected [alice], got %v", got)
	}

	out.reset()
	g.Connect("c2", "bob")
	ds = out.all()
	if got := presenceOf(t, ds[0]); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("expected [alice bob], got %v", got)
	}
}

func TestDisconnectBroadcastsPresence(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	g.Connect("c2", "bob")
	out.reset()

	g.Disconnect("c1", "client left")

	ds := out.all()
	if len(ds) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(ds))
	}
	if got := presenceOf(t, ds[0]); !reflect.DeepEqual(got, []string{"bob"}) {
		t.Errorf("expected [bob], got %v", got)
	}
}

func TestDisconnectDoubleFireTolerated(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	g.Disconnect("c1", "gone")
	out.reset()

	g.Disconnect("c1", "gone again")

	if ds := out.all(); len(ds) != 0 {
		t.Fatalf("expected no deliveries on double disconnect, got %+v", ds)
	}
}

func TestDisconnectUnknownConnTolerated(t *testing.T) {
	g, out := newTestGateway(t)

	g.Disconnect("never-connected", "race")

	if ds := out.all(); len(ds) != 0 {
		t.Fatalf("expected no deliveries, got %+v", ds)
	}
}

func TestJoinEmitsStatusAndHistory(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	out.reset()

	g.Join("c1", "General")

	ds := out.all()
	if len(ds) != 2 {
		t.Fatalf("expected 2 deliveries, got %d: %+v", len(ds), ds)
	}

	status := ds[0]
	if status.Event != EventStatus {
		t.Fatalf("expected status first, got %q", status.Event)
	}
	// The join status is multicast to the room including the joiner.
	if !reflect.DeepEqual(status.To, []ConnID{"c1"}) {
		t.Errorf("expected status to [c1], got %v", status.To)
	}
	sm, ok := status.Payload.(*message.Status)
	if !ok {
		t.Fatalf("expected *message.Status, got %T", status.Payload)
	}
	if sm.Type != message.StatusJoin {
		t.Errorf("expected join status, got %q", sm.Type)
	}
	if sm.Text != "alice has joined the room." {
		t.Errorf("unexpected status text %q", sm.Text)
	}

	hist := ds[1]
	if hist.Event != EventChatHistory {
		t.Fatalf("expected chat_history second, got %q", hist.Event)
	}
	if !reflect.DeepEqual(hist.To, []ConnID{"c1"}) {
		t.Errorf("history must go to the joiner only, got %v", hist.To)
	}
	hp, ok := hist.Payload.(ChatHistoryPayload)
	if !ok {
		t.Fatalf("expected ChatHistoryPayload, got %T", hist.Payload)
	}
	if hp.Messages == nil || len(hp.Messages) != 0 {
		t.Errorf("expected empty non-nil history, got %#v", hp.Messages)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	g.Join("c1", "General")
	out.reset()

	g.Join("c1", "General")

	if ds := out.all(); len(ds) != 0 {
		t.Fatalf("expected no deliveries on repeated join, got %+v", ds)
	}
}

func TestJoinInvalidRoomDropped(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	out.reset()

	g.Join("c1", "Lobby")

	if ds := out.all(); len(ds) != 0 {
		t.Fatalf("expected no deliveries, got %+v", ds)
	}
	if _, ok := g.CurrentRoom("c1"); ok {
		t.Error("invalid join must not set a room")
	}
}

func TestJoinSwitchesRooms(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	g.Join("c1", "General")
	out.reset()

	g.Join("c1", "News")

	if room, ok := g.CurrentRoom("c1"); !ok || room != "News" {
		t.Fatalf("expected News, got %q (ok=%v)", room, ok)
	}
	ds := out.all()
	if len(ds) != 2 {
		t.Fatalf("expected status + history, got %d deliveries", len(ds))
	}
}

func TestLeaveResetsRoomAndNotifiesMembers(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	g.Connect("c2", "bob")
	g.Join("c1", "General")
	g.Join("c2", "General")
	out.reset()

	g.Leave("c1", "General")

	if _, ok := g.CurrentRoom("c1"); ok {
		t.Error("expected room reset to none after leave")
	}
	ds := out.all()
	if len(ds) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(ds))
	}
	if ds[0].Event != EventStatus {
		t.Fatalf("expected status, got %q", ds[0].Event)
	}
	// Only the remaining member is notified; the leaver is already out.
	if !reflect.DeepEqual(ds[0].To, []ConnID{"c2"}) {
		t.Errorf("expected leave notice to [c2], got %v", ds[0].To)
	}
	sm := ds[0].Payload.(*message.Status)
	if sm.Type != message.StatusLeave {
		t.Errorf("expected leave status, got %q", sm.Type)
	}
}

func TestLeaveRoomNeverJoined(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	g.Connect("c2", "bob")
	g.Join("c2", "News")
	out.reset()

	// c1 never joined News; the notice is still emitted to News members.
	g.Leave("c1", "News")

	ds := out.all()
	if len(ds) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(ds))
	}
	if !reflect.DeepEqual(ds[0].To, []ConnID{"c2"}) {
		t.Errorf("expected notice to [c2], got %v", ds[0].To)
	}
}

func TestMessageFallsBackToDefaultRoomAfterLeave(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	g.Connect("c2", "bob")
	g.Join("c1", "Sport")
	g.Join("c2", "General")
	g.Leave("c1", "Sport")
	out.reset()

	g.Message("c1", InboundMessage{Text: "hello"})

	ds := out.all()
	if len(ds) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(ds))
	}
	pm, ok := ds[0].Payload.(*message.Public)
	if !ok {
		t.Fatalf("expected *message.Public, got %T", ds[0].Payload)
	}
	if pm.Room != "General" {
		t.Errorf("expected fallback to General, got %q", pm.Room)
	}
	if !reflect.DeepEqual(ds[0].To, []ConnID{"c2"}) {
		t.Errorf("expected delivery to [c2], got %v", ds[0].To)
	}
}

func TestPublicMessageMulticast(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	g.Connect("c2", "bob")
	g.Connect("c3", "carol")
	g.Join("c1", "General")
	g.Join("c2", "General")
	g.Join("c3", "News")
	out.reset()

	g.Message("c1", InboundMessage{Text: "hi", Room: "General"})

	ds := out.all()
	if len(ds) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(ds))
	}
	if ds[0].Event != EventMessage {
		t.Fatalf("expected message event, got %q", ds[0].Event)
	}
	if !reflect.DeepEqual(ds[0].To, []ConnID{"c1", "c2"}) {
		t.Errorf("expected [c1 c2], got %v", ds[0].To)
	}
	pm := ds[0].Payload.(*message.Public)
	if pm.Text != "hi" || pm.Username != "alice" || pm.Room != "General" {
		t.Errorf("unexpected payload %+v", pm)
	}
	if pm.Timestamp == "" {
		t.Error("expected a timestamp")
	}
}

func TestPublicMessageInvalidRoomDropped(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	out.reset()

	g.Message("c1", InboundMessage{Text: "hi", Room: "Lobby"})

	if ds := out.all(); len(ds) != 0 {
		t.Fatalf("expected zero deliveries, got %+v", ds)
	}
}

func TestEmptyMessageDropped(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	g.Join("c1", "General")
	out.reset()

	g.Message("c1", InboundMessage{Text: "   \t\n "})

	if ds := out.all(); len(ds) != 0 {
		t.Fatalf("expected zero deliveries, got %+v", ds)
	}
}

func TestPrivateMessageDeliveredToReceiverOnly(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	g.Connect("c2", "bob")
	g.Connect("c3", "carol")
	out.reset()

	g.Message("c1", InboundMessage{Type: "private", Text: "hey", Receiver: "bob"})

	ds := out.all()
	if len(ds) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(ds))
	}
	if ds[0].Event != EventPrivateMessage {
		t.Fatalf("expected private_message, got %q", ds[0].Event)
	}
	if !reflect.DeepEqual(ds[0].To, []ConnID{"c2"}) {
		t.Errorf("expected delivery to [c2] only, got %v", ds[0].To)
	}
	pm := ds[0].Payload.(*message.Private)
	if pm.Sender != "alice" || pm.Receiver != "bob" || pm.Text != "hey" {
		t.Errorf("unexpected payload %+v", pm)
	}
}

func TestPrivateMessageUnknownReceiverDropped(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	out.reset()

	g.Message("c1", InboundMessage{Type: "private", Text: "hey", Receiver: "nobody"})

	if ds := out.all(); len(ds) != 0 {
		t.Fatalf("expected zero deliveries, got %+v", ds)
	}
}

func TestPrivateMessageMissingReceiverDropped(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	out.reset()

	g.Message("c1", InboundMessage{Type: "private", Text: "hey"})

	if ds := out.all(); len(ds) != 0 {
		t.Fatalf("expected zero deliveries, got %+v", ds)
	}
}

func TestHistoryDeliveredToLaterJoiner(t *testing.T) {
	g, out := newTestGateway(t)
	g.Connect("c1", "alice")
	g.Join("c1", "General")
	g.Message("c1", InboundMessage{Text: "hi", Room: "General"})
	g.Connect("c2", "bob")
	out.reset()

	g.Join("c2", "General")

	ds := out.all()
	if len(ds) != 2 {
		t.Fatalf("expected status + history, got %d", len(ds))
	}
	hp := ds[1].Payload.(ChatHistoryPayload)
	if len(hp.Messages) != 1 {
		t.Fatalf("expected 1 history message, got %d", len(hp.Messages))
	}
	if hp.Messages[0].Text != "hi" || hp.Messages[0].Username != "alice" {
		t.Errorf("unexpected history entry %+v", hp.Messages[0])
	}
}

// panicStore triggers the gateway's fault isolation.
type panicStore struct{ message.HistoryStore }

func (panicStore) Append(room string, msg *message.Public) { panic("store exploded") }

func TestEventFaultIsolated(t *testing.T) {
	rooms, _ := NewRooms([]string{"General"}, "")
	out := &capture{}
	g := NewGateway(rooms, panicStore{message.NewStore(0)}, out)

	g.Connect("c1", "alice")
	g.Join("c1", "General")
	out.reset()

	// Append panics; the event is dropped and the gateway keeps working.
	g.Message("c1", InboundMessage{Text: "boom", Room: "General"})
	if ds := out.all(); len(ds) != 0 {
		t.Fatalf("expected faulted event to produce nothing, got %+v", ds)
	}

	g.Connect("c2", "bob")
	if got := g.OnlineUsers(); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("gateway should keep working after a fault, got %v", got)
	}
}

// gatedStore blocks selected history calls until released, to observe
// whether store I/O holds up the gateway.
type gatedStore struct {
	message.HistoryStore
	gateAll    bool
	gateAppend bool
	entered    chan struct{}
	release    chan struct{}
}

func newGatedStore(gateAll, gateAppend bool) *gatedStore {
	return &gatedStore{
		HistoryStore: message.NewStore(0),
		gateAll:      gateAll,
		gateAppend:   gateAppend,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (s *gatedStore) gate() {
	s.entered <- struct{}{}
	<-s.release
}

func (s *gatedStore) All(room string) []*message.Public {
	if s.gateAll {
		s.gate()
	}
	return s.HistoryStore.All(room)
}

func (s *gatedStore) Append(room string, msg *message.Public) {
	if s.gateAppend {
		s.gate()
	}
	s.HistoryStore.Append(room, msg)
}

func TestHistoryReadDoesNotBlockGateway(t *testing.T) {
	rooms, _ := NewRooms([]string{"General"}, "")
	out := &capture{}
	store := newGatedStore(true, false)
	g := NewGateway(rooms, store, out)
	g.Connect("c1", "alice")

	joined := make(chan struct{})
	go func() {
		g.Join("c1", "General")
		close(joined)
	}()
	<-store.entered

	// The history read is in flight; unrelated events must not queue
	// behind it.
	connected := make(chan struct{})
	go func() {
		g.Connect("c2", "bob")
		close(connected)
	}()
	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("connect blocked behind a history read")
	}

	close(store.release)
	<-joined
}

func TestHistoryAppendDoesNotBlockGateway(t *testing.T) {
	rooms, _ := NewRooms([]string{"General"}, "")
	out := &capture{}
	store := newGatedStore(false, true)
	g := NewGateway(rooms, store, out)
	g.Connect("c1", "alice")
	g.Join("c1", "General")

	sent := make(chan struct{})
	go func() {
		g.Message("c1", InboundMessage{Text: "hi", Room: "General"})
		close(sent)
	}()
	<-store.entered

	connected := make(chan struct{})
	go func() {
		g.Connect("c2", "bob")
		close(connected)
	}()
	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("connect blocked behind a history append")
	}

	close(store.release)
	<-sent
}

func TestConcurrentConnectDisconnect(t *testing.T) {
	g, _ := newTestGateway(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := ConnID(fmt.Sprintf("conn-%02d", n))
			g.Connect(conn, "user")
			g.Join(conn, "General")
			g.Message(conn, InboundMessage{Text: "hello"})
			if n%2 == 0 {
				g.Disconnect(conn, "done")
			}
		}(i)
	}
	wg.Wait()

	if got := len(g.OnlineUsers()); got != 25 {
		t.Errorf("expected 25 users online, got %d", got)
	}
}
