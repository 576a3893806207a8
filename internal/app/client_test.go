package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"retroboard/internal/retro"
	"retroboard/internal/roster"
	"retroboard/internal/store"
	"retroboard/internal/transport"
)

type fakeTransport struct {
	handlers transport.Handlers
	joined   string
	closed   bool
}

func (f *fakeTransport) Connect(context.Context) error { return nil }
func (f *fakeTransport) Join(_ context.Context, sessionID, _, _ string) error {
	f.joined = sessionID
	return nil
}
func (f *fakeTransport) Leave(context.Context) error { f.joined = ""; return nil }
func (f *fakeTransport) BroadcastDocument(context.Context, retro.Document) error {
	return nil
}
func (f *fakeTransport) SetHandlers(h transport.Handlers) { f.handlers = h }
func (f *fakeTransport) Close() error                     { f.closed = true; return nil }

func newTestClient(t *testing.T) (*ClientSession, *fakeTransport, *Service, retro.Document) {
	t.Helper()
	return newTestClientAs(t, alice)
}

func newTestClientAs(t *testing.T, user roster.Identity) (*ClientSession, *fakeTransport, *Service, retro.Document) {
	t.Helper()
	service, created := newTestService(t)
	tr := &fakeTransport{}
	client := NewClientSession(service, tr, "team-1", created.ID, user)
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(client.Close)
	return client, tr, service, created
}

func drainUntil(t *testing.T, client *ClientSession, eventType string) outbound {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-client.Send():
			if msg.Type == eventType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

func inboundJSON(t *testing.T, msg inbound) []byte {
	t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestStartPushesInitialDocument(t *testing.T) {
	client, tr, _, created := newTestClient(t)
	msg := drainUntil(t, client, eventSession)
	if msg.Document == nil || msg.Document.ID != created.ID {
		t.Fatalf("initial push = %+v", msg)
	}
	if tr.joined != created.ID {
		t.Fatalf("joined = %q, want the session channel", tr.joined)
	}
}

func TestStartUnknownSession(t *testing.T) {
	service, _ := newTestService(t)
	client := NewClientSession(service, &fakeTransport{}, "team-1", "missing", alice)
	if err := client.Start(context.Background()); err != store.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRemoteDocumentIsReconciled(t *testing.T) {
	client, tr, service, created := newTestClient(t)
	ctx := context.Background()
	sid := created.ID
	drainUntil(t, client, eventSession)

	setPhase(t, service, sid, retro.PhaseBrainstorm)
	doc, err := service.AddTicket(ctx, "team-1", sid, alice, "col-good", "a note")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	ticketID := doc.Tickets[0].ID
	setPhase(t, service, sid, retro.PhaseVote)
	doc, err = service.VoteTicket(ctx, "team-1", sid, alice, ticketID, +1)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}

	// A stale remote snapshot without alice's vote but with bob's arrives.
	stale := doc.Clone()
	stale.TicketByID(ticketID).Votes = []string{bob.ID}
	stale.UpdatedAt = doc.UpdatedAt.Add(-time.Second)
	tr.handlers.OnDocument(stale)

	msg := drainUntil(t, client, eventSession)
	for msg.Document.TicketByID(ticketID) == nil || len(msg.Document.TicketByID(ticketID).Votes) < 2 {
		msg = drainUntil(t, client, eventSession)
	}
	votes := msg.Document.TicketByID(ticketID).Votes
	counts := map[string]int{}
	for _, v := range votes {
		counts[v]++
	}
	if counts[alice.ID] != 1 || counts[bob.ID] != 1 {
		t.Fatalf("votes = %v, want alice's vote preserved and bob's adopted", votes)
	}
}

func TestInboundEditStateFeedsMerge(t *testing.T) {
	client, tr, service, created := newTestClient(t)
	ctx := context.Background()
	sid := created.ID
	drainUntil(t, client, eventSession)

	setPhase(t, service, sid, retro.PhaseBrainstorm)
	doc, err := service.AddTicket(ctx, "team-1", sid, alice, "col-good", "local draft")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	ticketID := doc.Tickets[0].ID

	client.HandleInbound(inboundJSON(t, inbound{Type: inboundEditTicket, TicketID: ticketID}))

	remote := doc.Clone()
	remote.TicketByID(ticketID).Text = "remote overwrite"
	tr.handlers.OnDocument(remote)

	msg := drainUntil(t, client, eventSession)
	if got := msg.Document.TicketByID(ticketID).Text; got != "local draft" {
		t.Fatalf("text = %q, the open edit must survive the broadcast", got)
	}

	// Once editing is done, the next broadcast wins.
	client.HandleInbound(inboundJSON(t, inbound{Type: inboundEditDone}))
	tr.handlers.OnDocument(remote)
	msg = drainUntil(t, client, eventSession)
	if got := msg.Document.TicketByID(ticketID).Text; got != "remote overwrite" {
		t.Fatalf("text = %q, want the broadcast after editing_done", got)
	}
}

func TestPhaseTransitionClosesEditWindows(t *testing.T) {
	client, tr, service, created := newTestClient(t)
	ctx := context.Background()
	sid := created.ID
	drainUntil(t, client, eventSession)

	setPhase(t, service, sid, retro.PhaseBrainstorm)
	doc, err := service.AddTicket(ctx, "team-1", sid, alice, "col-good", "local draft")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	ticketID := doc.Tickets[0].ID

	// Alice opens an edit window and never closes it.
	client.HandleInbound(inboundJSON(t, inbound{Type: inboundEditTicket, TicketID: ticketID}))

	// The facilitator moves on; the broadcast carries the new phase and a
	// newer text. The open window must not pin the local draft.
	remote := doc.Clone()
	remote.Phase = retro.PhaseGroup
	remote.TicketByID(ticketID).Text = "settled text"
	tr.handlers.OnDocument(remote)

	msg := drainUntil(t, client, eventSession)
	for msg.Document.Phase != retro.PhaseGroup {
		msg = drainUntil(t, client, eventSession)
	}
	if got := msg.Document.TicketByID(ticketID).Text; got != "settled text" {
		t.Fatalf("text = %q, want the edit window closed by the phase change", got)
	}

	// The window stays closed for later broadcasts too.
	later := remote.Clone()
	later.TicketByID(ticketID).Text = "revised text"
	tr.handlers.OnDocument(later)
	msg = drainUntil(t, client, eventSession)
	for msg.Document.TicketByID(ticketID).Text != "revised text" {
		msg = drainUntil(t, client, eventSession)
	}
}

func TestIcebreakerDebounceExpires(t *testing.T) {
	client, tr, service, created := newTestClientAs(t, facilitator)
	drainUntil(t, client, eventSession)

	if _, err := service.SetIcebreaker(context.Background(), "team-1", created.ID, facilitator, "local question"); err != nil {
		t.Fatalf("icebreaker: %v", err)
	}
	client.HandleInbound(inboundJSON(t, inbound{Type: inboundIcebreakerTyping}))

	// While the window is open the local question survives.
	remote := created.Clone()
	remote.IcebreakerQuestion = "remote question"
	tr.handlers.OnDocument(remote)
	msg := drainUntil(t, client, eventSession)
	if msg.Document.IcebreakerQuestion == "remote question" {
		t.Fatal("broadcast clobbered the open typing window")
	}

	// After the debounce the remote value is accepted.
	time.Sleep(testConfig().IcebreakerDebounce * 3)
	tr.handlers.OnDocument(remote)
	msg = drainUntil(t, client, eventSession)
	for msg.Document.IcebreakerQuestion != "remote question" {
		msg = drainUntil(t, client, eventSession)
	}
}

func TestIcebreakerTypingIgnoredFromParticipants(t *testing.T) {
	client, tr, _, created := newTestClient(t)
	drainUntil(t, client, eventSession)

	// Alice is a participant; her typing signal must not open the window.
	client.HandleInbound(inboundJSON(t, inbound{Type: inboundIcebreakerTyping}))

	remote := created.Clone()
	remote.IcebreakerQuestion = "remote question"
	tr.handlers.OnDocument(remote)
	msg := drainUntil(t, client, eventSession)
	for msg.Document.IcebreakerQuestion != "remote question" {
		msg = drainUntil(t, client, eventSession)
	}
}

func TestPresenceEventsCarryConnectedSet(t *testing.T) {
	client, tr, _, _ := newTestClient(t)
	drainUntil(t, client, eventSession)

	tr.handlers.OnMemberJoined(transport.Member{ID: bob.ID, Name: "Bob"})
	msg := drainUntil(t, client, eventMemberJoined)
	if msg.Member == nil || msg.Member.ID != bob.ID {
		t.Fatalf("member = %+v", msg.Member)
	}
	if len(msg.Connected) != 1 {
		t.Fatalf("connected = %v", msg.Connected)
	}

	tr.handlers.OnMemberLeft(transport.Member{ID: bob.ID, Name: "Bob"})
	msg = drainUntil(t, client, eventMemberLeft)
	if len(msg.Connected) != 0 {
		t.Fatalf("connected = %v, want empty after leave", msg.Connected)
	}
}

func TestRosterMergedIntoDocumentOnce(t *testing.T) {
	client, tr, service, created := newTestClient(t)
	drainUntil(t, client, eventSession)

	members := []transport.Member{{ID: "u-carol", Name: "Carol"}}
	tr.handlers.OnRoster(members)
	drainUntil(t, client, eventRoster)

	doc, err := service.Document(context.Background(), "team-1", created.ID, alice.ID)
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	found := false
	for _, p := range doc.Participants {
		if p.ID == "u-carol" {
			found = true
		}
	}
	if !found {
		t.Fatalf("participants = %v, want carol merged", doc.Participants)
	}

	// Repeat announcements push events but do not re-merge.
	before := len(doc.Participants)
	tr.handlers.OnRoster(members)
	drainUntil(t, client, eventRoster)
	doc, _ = service.Document(context.Background(), "team-1", created.ID, alice.ID)
	if len(doc.Participants) != before {
		t.Fatalf("roster grew on repeat announcement: %v", doc.Participants)
	}
}

func TestCloseLeavesTransport(t *testing.T) {
	client, tr, _, _ := newTestClient(t)
	client.Close()
	if tr.joined != "" {
		t.Fatal("close must leave the session")
	}
	if !tr.closed {
		t.Fatal("close must close the transport")
	}
	select {
	case <-client.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}
