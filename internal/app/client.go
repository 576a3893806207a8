package app

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"retroboard/internal/presence"
	"retroboard/internal/reconcile"
	"retroboard/internal/retro"
	"retroboard/internal/roster"
	"retroboard/internal/store"
	"retroboard/internal/transport"
)

// outbound is the envelope pushed to a connected socket.
type outbound struct {
	Type           string              `json:"type"`
	Document       *retro.Document     `json:"document,omitempty"`
	TimerRemaining int                 `json:"timerRemaining,omitempty"`
	Member         *transport.Member   `json:"member,omitempty"`
	Members        []transport.Member  `json:"members,omitempty"`
	Connected      []retro.Participant `json:"connected,omitempty"`
}

// Outbound event types.
const (
	eventSession      = "session"
	eventMemberJoined = "member_joined"
	eventMemberLeft   = "member_left"
	eventRoster       = "roster"
)

// inbound is what the socket sends us: edit-state signals. Everything that
// mutates the document goes over REST; the socket only reports what the
// user is in the middle of, which feeds the merge carve-outs.
type inbound struct {
	Type     string `json:"type"`
	TicketID string `json:"ticketId,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
}

// Inbound event types.
const (
	inboundEditTicket       = "editing_ticket"
	inboundEditGroup        = "editing_group"
	inboundEditDone         = "editing_done"
	inboundIcebreakerTyping = "icebreaker_typing"
)

// ClientSession is one connected participant's live view of a session: the
// join on the sync transport, the locally held document with its unsaved
// edit state, the presence tracker and the timer watch loop. Incoming
// broadcasts are reconciled here before they reach the socket.
type ClientSession struct {
	teamID    string
	sessionID string
	user      roster.Identity

	service   *Service
	store     *store.SessionStore
	transport transport.Transport
	tracker   *presence.Tracker

	mu              sync.Mutex
	edit            reconcile.EditState
	last            retro.Document
	hasLast         bool
	expirySynced    bool
	icebreakerTimer *time.Timer

	send      chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

// NewClientSession builds a client session; Start attaches it.
func NewClientSession(service *Service, tr transport.Transport, teamID, sessionID string, user roster.Identity) *ClientSession {
	return &ClientSession{
		teamID:    teamID,
		sessionID: sessionID,
		user:      user,
		service:   service,
		store:     service.Store(),
		transport: tr,
		tracker:   presence.NewTracker(),
		send:      make(chan outbound, 32),
		done:      make(chan struct{}),
	}
}

// Send is the channel the gateway drains into the socket.
func (c *ClientSession) Send() <-chan outbound {
	return c.send
}

// Done closes when the session is torn down.
func (c *ClientSession) Done() <-chan struct{} {
	return c.done
}

// Start connects the transport, joins the session channel and pushes the
// initial state. A transport connection failure is logged and the session
// continues local-only: the user still sees the document, just not live.
func (c *ClientSession) Start(ctx context.Context) error {
	doc, found, err := c.store.Read(ctx, c.teamID, c.sessionID)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	c.mu.Lock()
	c.last = doc
	c.hasLast = true
	c.mu.Unlock()

	c.transport.SetHandlers(transport.Handlers{
		OnDocument:     c.onDocument,
		OnMemberJoined: c.onMemberJoined,
		OnMemberLeft:   c.onMemberLeft,
		OnRoster:       c.onRoster,
	})
	if err := c.transport.Connect(ctx); err != nil {
		log.Printf("client %s: sync unavailable, continuing local-only: %v", c.user.ID, err)
	} else if err := c.transport.Join(ctx, c.sessionID, c.user.ID, c.user.Name); err != nil {
		log.Printf("client %s: join failed, continuing local-only: %v", c.user.ID, err)
	}

	c.service.Hub().Add(c)
	c.pushDocument(doc)
	go c.watchTimer()
	return nil
}

// HandleInbound consumes one edit-state message from the socket.
func (c *ClientSession) HandleInbound(raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("client %s: dropping undecodable message: %v", c.user.ID, err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case inboundEditTicket:
		c.edit.EditingTicketID = msg.TicketID
		c.edit.EditingGroupID = ""
	case inboundEditGroup:
		c.edit.EditingGroupID = msg.GroupID
		c.edit.EditingTicketID = ""
	case inboundEditDone:
		c.edit.EditingTicketID = ""
		c.edit.EditingGroupID = ""
	case inboundIcebreakerTyping:
		// Only the facilitator edits the icebreaker question.
		if !c.user.Facilitator() {
			return
		}
		// Keep the carve-out open until the debounce elapses after the
		// last keystroke.
		c.edit.IcebreakerEditing = true
		if c.icebreakerTimer != nil {
			c.icebreakerTimer.Stop()
		}
		c.icebreakerTimer = time.AfterFunc(c.service.cfg.IcebreakerDebounce, func() {
			c.mu.Lock()
			c.edit.IcebreakerEditing = false
			c.mu.Unlock()
		})
	}
}

// onDocument reconciles a remote broadcast against the locally held state
// and pushes the merged document.
func (c *ClientSession) onDocument(incoming retro.Document) {
	c.mu.Lock()
	if c.hasLast && incoming.Phase != c.last.Phase {
		c.resetEditLocked()
	}
	var merged retro.Document
	if c.hasLast {
		merged = reconcile.Merge(c.last, incoming, c.edit, c.user.ID)
	} else {
		merged = incoming.Clone()
	}
	c.last = merged
	c.hasLast = true
	if merged.Settings.TimerRunning {
		c.expirySynced = false
	}
	c.mu.Unlock()

	c.store.PrimeIfNewer(c.teamID, c.sessionID, merged)
	c.pushDocument(merged)
}

// applyLocal installs a document this user just produced over REST. No
// reconciliation: their own write is by definition the freshest local
// state.
func (c *ClientSession) applyLocal(doc retro.Document) {
	c.mu.Lock()
	if c.hasLast && doc.Phase != c.last.Phase {
		c.resetEditLocked()
	}
	c.last = doc.Clone()
	c.hasLast = true
	if doc.Settings.TimerRunning {
		c.expirySynced = false
	}
	c.mu.Unlock()
	c.pushDocument(doc)
}

// resetEditLocked closes every open edit window. A phase transition ends
// whatever the user was typing; without this a client that never sends
// editing_done would pin stale local text over every later broadcast.
// Callers hold c.mu.
func (c *ClientSession) resetEditLocked() {
	c.edit = reconcile.EditState{}
	if c.icebreakerTimer != nil {
		c.icebreakerTimer.Stop()
		c.icebreakerTimer = nil
	}
}

func (c *ClientSession) onMemberJoined(m transport.Member) {
	c.tracker.Join(retro.Participant{ID: m.ID, Name: m.Name})
	c.push(outbound{Type: eventMemberJoined, Member: &m, Connected: c.tracker.Snapshot()})
}

func (c *ClientSession) onMemberLeft(m transport.Member) {
	c.tracker.Leave(m.ID)
	c.push(outbound{Type: eventMemberLeft, Member: &m, Connected: c.tracker.Snapshot()})
}

// onRoster replaces the connected set. The first announcement after
// joining is merged into the document roster exactly once; the latch stops
// repeated broadcasts from re-adding already-known users.
func (c *ClientSession) onRoster(members []transport.Member) {
	participants := make([]retro.Participant, 0, len(members))
	for _, m := range members {
		participants = append(participants, retro.Participant{ID: m.ID, Name: m.Name})
	}
	first := c.tracker.SetRoster(participants)
	if first {
		if _, err := c.service.MergeRoster(context.Background(), c.teamID, c.sessionID, c.user, participants); err != nil {
			log.Printf("client %s: merge roster: %v", c.user.ID, err)
		}
	}
	c.push(outbound{Type: eventRoster, Members: members, Connected: c.tracker.Snapshot()})
}

// watchTimer recomputes the countdown from the wall-clock anchor once a
// second. Skipped ticks don't matter: expiry is detected from the anchor,
// not from tick counting. The facilitator's session syncs the zeroed state
// exactly once per run.
func (c *ClientSession) watchTimer() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			settings := c.last.Settings
			synced := c.expirySynced
			c.mu.Unlock()
			if !presence.Expired(settings, now) || synced {
				continue
			}
			c.mu.Lock()
			c.expirySynced = true
			c.last.ExpireTimer()
			local := c.last
			c.mu.Unlock()
			if c.user.Facilitator() {
				if _, err := c.service.ExpireTimer(context.Background(), c.teamID, c.sessionID, c.user); err != nil {
					log.Printf("client %s: sync timer expiry: %v", c.user.ID, err)
				}
			} else {
				c.pushDocument(local)
			}
		}
	}
}

// pushDocument masks the document for this viewer and sends it.
func (c *ClientSession) pushDocument(doc retro.Document) {
	masked := maskForViewer(doc, c.user.ID)
	c.push(outbound{
		Type:           eventSession,
		Document:       &masked,
		TimerRemaining: presence.Remaining(doc.Settings, time.Now()),
	})
}

func (c *ClientSession) push(msg outbound) {
	select {
	case c.send <- msg:
	default:
		// Slow consumer; drop rather than block the sync pipeline. The
		// next document push carries the full state anyway.
	}
}

// Close leaves the session and cancels every pending local timer so a
// stale debounce cannot fire after navigation away.
func (c *ClientSession) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.icebreakerTimer != nil {
			c.icebreakerTimer.Stop()
		}
		c.mu.Unlock()
		c.service.cancelAutoFinish(c.sessionID, c.user.ID)
		c.tracker.Reset()
		if err := c.transport.Leave(context.Background()); err != nil {
			log.Printf("client %s: leave: %v", c.user.ID, err)
		}
		if err := c.transport.Close(); err != nil {
			log.Printf("client %s: close transport: %v", c.user.ID, err)
		}
		c.service.Hub().Remove(c)
	})
}
