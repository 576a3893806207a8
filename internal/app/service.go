package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"retroboard/internal/config"
	"retroboard/internal/retro"
	"retroboard/internal/roster"
	"retroboard/internal/store"
)

// Service drives every session mutation: validation, facilitator gating,
// the per-phase business rules and the debounced side effects. All state
// changes funnel through the session store, which persists and broadcasts
// as one step.
type Service struct {
	cfg         config.Config
	store       *store.SessionStore
	persistence store.Persistence
	hub         *Hub

	mu         sync.Mutex
	autoFinish map[string]*time.Timer
}

// New wires the service. persistence is the same collaborator the session
// store writes documents through; the service uses it directly for the
// global action backlog.
func New(cfg config.Config, sessionStore *store.SessionStore, persistence store.Persistence) *Service {
	return &Service{
		cfg:         cfg,
		store:       sessionStore,
		persistence: persistence,
		hub:         NewHub(),
		autoFinish:  map[string]*time.Timer{},
	}
}

// Hub exposes the client-session registry for the WebSocket gateway.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Store exposes the session store for client sessions.
func (s *Service) Store() *store.SessionStore {
	return s.store
}

// Ping checks the persistence collaborator, for readiness probes.
func (s *Service) Ping(ctx context.Context) error {
	return s.persistence.Ping(ctx)
}

// CreateSessionInput is the facilitator's session setup.
type CreateSessionInput struct {
	Columns  []retro.Column `json:"columns"`
	Settings retro.Settings `json:"settings"`
}

// CreateSession starts a retrospective. Facilitator only.
func (s *Service) CreateSession(ctx context.Context, teamID string, actor roster.Identity, input CreateSessionInput) (retro.Document, error) {
	if !actor.Facilitator() {
		return retro.Document{}, ErrForbidden
	}
	settings := input.Settings
	if settings.MaxVotes <= 0 {
		settings.MaxVotes = s.cfg.DefaultMaxVotes
	}
	if settings.TimerInitial <= 0 {
		settings.TimerInitial = s.cfg.DefaultTimerSeconds
	}
	columns := input.Columns
	for i := range columns {
		if columns[i].ID == "" {
			columns[i].ID = uuid.New().String()
		}
	}
	doc := retro.NewDocument(uuid.New().String(), teamID, columns, settings)
	doc.Participants = roster.New().Resolve(nil, actor, nil)
	return s.store.Create(ctx, doc)
}

// Document returns the session document shaped for one viewer.
func (s *Service) Document(ctx context.Context, teamID, sessionID, viewerID string) (retro.Document, error) {
	doc, found, err := s.store.Read(ctx, teamID, sessionID)
	if err != nil {
		return retro.Document{}, err
	}
	if !found {
		return retro.Document{}, store.ErrNotFound
	}
	return maskForViewer(doc, viewerID), nil
}

// maskForViewer is the full viewer-shaping pass: the document's own masking
// plus, in anonymous mode, the roster positions rendered as deterministic
// labels so every client names a hidden participant the same way.
func maskForViewer(doc retro.Document, viewerID string) retro.Document {
	out := doc.MaskForViewer(viewerID)
	if out.Settings.Anonymous {
		for i := range out.Participants {
			out.Participants[i].Name = roster.DisplayName(doc.Participants, out.Participants[i], viewerID, true)
		}
	}
	return out
}

// update is the shared mutation path: store update, then refresh the acting
// user's live client sessions so their local copy reflects their own edit
// before any broadcast round-trip.
func (s *Service) update(ctx context.Context, teamID, sessionID string, actor roster.Identity, updater func(*retro.Document) error) (retro.Document, error) {
	doc, err := s.store.Update(ctx, teamID, sessionID, actor, updater)
	if err != nil {
		return retro.Document{}, err
	}
	s.hub.ApplyLocal(sessionID, actor.ID, doc)
	return doc, nil
}

// SetPhase moves the session to any phase. Facilitator only. Entering
// OPEN_ACTIONS or REVIEW captures a stable snapshot of the team's action
// backlog; entering CLOSE commits the session's accepted actions to it.
func (s *Service) SetPhase(ctx context.Context, teamID, sessionID string, actor roster.Identity, phase retro.Phase) (retro.Document, error) {
	if !actor.Facilitator() {
		return retro.Document{}, ErrForbidden
	}

	var backlog []retro.Action
	if phase == retro.PhaseOpenActions || phase == retro.PhaseReview {
		var err error
		backlog, err = s.persistence.ListGlobalActions(ctx, teamID)
		if err != nil {
			log.Printf("snapshot backlog for %s: %v", sessionID, err)
		}
	}

	doc, err := s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		if err := d.SetPhase(phase); err != nil {
			return err
		}
		switch phase {
		case retro.PhaseOpenActions:
			d.OpenActionsSnapshot = filterActions(backlog, false)
		case retro.PhaseReview:
			d.HistoryActionsSnapshot = filterActions(backlog, true)
		}
		return nil
	})
	if err != nil {
		return retro.Document{}, err
	}

	s.cancelSessionTimers(sessionID)

	if phase == retro.PhaseClose {
		for _, action := range doc.CommittedActions() {
			if err := s.persistence.AppendOrUpdateGlobalAction(ctx, teamID, action); err != nil {
				log.Printf("commit action %s to backlog: %v", action.ID, err)
			}
		}
	}
	return doc, nil
}

// AdvancePhase moves to the next phase in workflow order.
func (s *Service) AdvancePhase(ctx context.Context, teamID, sessionID string, actor roster.Identity) (retro.Document, error) {
	doc, found, err := s.store.Read(ctx, teamID, sessionID)
	if err != nil {
		return retro.Document{}, err
	}
	if !found {
		return retro.Document{}, store.ErrNotFound
	}
	return s.SetPhase(ctx, teamID, sessionID, actor, doc.Phase.Next())
}

// SetIcebreaker sets the icebreaker question. Facilitator only.
func (s *Service) SetIcebreaker(ctx context.Context, teamID, sessionID string, actor roster.Identity, question string) (retro.Document, error) {
	if !actor.Facilitator() {
		return retro.Document{}, ErrForbidden
	}
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		d.IcebreakerQuestion = question
		return nil
	})
}

// CastHappiness records the actor's happiness ballot.
func (s *Service) CastHappiness(ctx context.Context, teamID, sessionID string, actor roster.Identity, value int) (retro.Document, error) {
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.CastHappiness(actor.ID, value)
	})
}

// CastRoti records the actor's ROTI ballot.
func (s *Service) CastRoti(ctx context.Context, teamID, sessionID string, actor roster.Identity, value int) (retro.Document, error) {
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.CastRoti(actor.ID, value)
	})
}

// AddTicket creates a brainstorm ticket authored by the actor.
func (s *Service) AddTicket(ctx context.Context, teamID, sessionID string, actor roster.Identity, columnID, text string) (retro.Document, error) {
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.AddTicket(uuid.New().String(), columnID, text, actor.ID)
	})
}

// UpdateTicket rewrites a ticket's text.
func (s *Service) UpdateTicket(ctx context.Context, teamID, sessionID string, actor roster.Identity, ticketID, text string) (retro.Document, error) {
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.UpdateTicketText(ticketID, text, actor.ID, actor.Facilitator())
	})
}

// DeleteTicket removes the actor's own ticket during BRAINSTORM.
func (s *Service) DeleteTicket(ctx context.Context, teamID, sessionID string, actor roster.Identity, ticketID string) (retro.Document, error) {
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.DeleteTicket(ticketID, actor.ID)
	})
}

// ToggleReaction flips the actor's emoji reaction on a ticket.
func (s *Service) ToggleReaction(ctx context.Context, teamID, sessionID string, actor roster.Identity, ticketID, emoji string) (retro.Document, error) {
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.ToggleReaction(ticketID, emoji, actor.ID)
	})
}

// UpdateColumn edits a column. Facilitator only, BRAINSTORM only.
func (s *Service) UpdateColumn(ctx context.Context, teamID, sessionID string, actor roster.Identity, columnID, title, icon, color string) (retro.Document, error) {
	if !actor.Facilitator() {
		return retro.Document{}, ErrForbidden
	}
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.UpdateColumn(columnID, title, icon, color)
	})
}

// VoteTicket casts (delta > 0) or retracts (delta < 0) one of the actor's
// votes on a ticket, then runs the auto-finish bookkeeping.
func (s *Service) VoteTicket(ctx context.Context, teamID, sessionID string, actor roster.Identity, ticketID string, delta int) (retro.Document, error) {
	return s.vote(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		if delta < 0 {
			return d.RetractTicketVote(ticketID, actor.ID)
		}
		return d.CastTicketVote(ticketID, actor.ID)
	})
}

// VoteGroup is VoteTicket for groups.
func (s *Service) VoteGroup(ctx context.Context, teamID, sessionID string, actor roster.Identity, groupID string, delta int) (retro.Document, error) {
	return s.vote(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		if delta < 0 {
			return d.RetractGroupVote(groupID, actor.ID)
		}
		return d.CastGroupVote(groupID, actor.ID)
	})
}

func (s *Service) vote(ctx context.Context, teamID, sessionID string, actor roster.Identity, mutate func(*retro.Document) error) (retro.Document, error) {
	var votesLeft int
	doc, err := s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		if err := mutate(d); err != nil {
			return err
		}
		d.UnfinishIfAuto(actor.ID)
		votesLeft = d.VotesLeft(actor.ID)
		return nil
	})
	if err != nil {
		return retro.Document{}, err
	}
	if votesLeft == 0 {
		s.scheduleAutoFinish(teamID, sessionID, actor)
	} else {
		s.cancelAutoFinish(sessionID, actor.ID)
	}
	return doc, nil
}

// MergeTickets merges the dragged ticket onto the target, creating a group
// on first merge or joining the target's existing group.
func (s *Service) MergeTickets(ctx context.Context, teamID, sessionID string, actor roster.Identity, targetID, draggedID string) (retro.Document, error) {
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.MergeTickets(uuid.New().String(), targetID, draggedID)
	})
}

// AddTicketToGroup moves a ticket into an existing group.
func (s *Service) AddTicketToGroup(ctx context.Context, teamID, sessionID string, actor roster.Identity, groupID, ticketID string) (retro.Document, error) {
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.AddTicketToGroup(groupID, ticketID)
	})
}

// RemoveTicketFromGroup detaches a ticket; the group dissolves if one or
// zero members remain.
func (s *Service) RemoveTicketFromGroup(ctx context.Context, teamID, sessionID string, actor roster.Identity, ticketID string) (retro.Document, error) {
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.RemoveTicketFromGroup(ticketID)
	})
}

// SetGroupTitle names a group.
func (s *Service) SetGroupTitle(ctx context.Context, teamID, sessionID string, actor roster.Identity, groupID, title string) (retro.Document, error) {
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.SetGroupTitle(groupID, title)
	})
}

// AddAction creates an action during DISCUSS. Participants create
// proposals; a direct "new" action bypasses proposal voting and is
// facilitator only.
func (s *Service) AddAction(ctx context.Context, teamID, sessionID string, actor roster.Identity, text, assigneeID, actionType, linkedID string) (retro.Document, error) {
	if actionType == retro.ActionTypeNew && !actor.Facilitator() {
		return retro.Document{}, ErrForbidden
	}
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.AddAction(uuid.New().String(), text, assigneeID, actionType, linkedID)
	})
}

// VoteProposal toggles the actor's up/down/neutral stance on a proposal.
func (s *Service) VoteProposal(ctx context.Context, teamID, sessionID string, actor roster.Identity, actionID, direction string) (retro.Document, error) {
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.VoteProposal(actionID, actor.ID, direction)
	})
}

// AcceptProposal promotes a proposal to a committed action. Facilitator
// only.
func (s *Service) AcceptProposal(ctx context.Context, teamID, sessionID string, actor roster.Identity, actionID string) (retro.Document, error) {
	if !actor.Facilitator() {
		return retro.Document{}, ErrForbidden
	}
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.AcceptProposal(actionID)
	})
}

// UpdateAction edits an action's done flag and assignee. Edits to snapshot
// items write through to the global backlog so the curated list and the
// backlog agree.
func (s *Service) UpdateAction(ctx context.Context, teamID, sessionID string, actor roster.Identity, actionID string, done bool, assigneeID string) (retro.Document, error) {
	var updated *retro.Action
	var fromSnapshot bool
	doc, err := s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		fromSnapshot = d.ActionByID(actionID) == nil
		action, err := d.UpdateAction(actionID, done, assigneeID)
		if err != nil {
			return err
		}
		copied := *action
		updated = &copied
		return nil
	})
	if err != nil {
		return retro.Document{}, err
	}
	if fromSnapshot && updated != nil {
		if err := s.persistence.AppendOrUpdateGlobalAction(ctx, teamID, *updated); err != nil {
			log.Printf("write action %s through to backlog: %v", actionID, err)
		}
	}
	return doc, nil
}

// DeleteAction removes an action from the session and, for the
// facilitator, from the global backlog.
func (s *Service) DeleteAction(ctx context.Context, teamID, sessionID string, actor roster.Identity, actionID string) (retro.Document, error) {
	if !actor.Facilitator() {
		return retro.Document{}, ErrForbidden
	}
	doc, err := s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.DeleteAction(actionID)
	})
	if err != nil {
		return retro.Document{}, err
	}
	if err := s.persistence.DeleteGlobalAction(ctx, teamID, actionID); err != nil {
		log.Printf("delete action %s from backlog: %v", actionID, err)
	}
	return doc, nil
}

// SetDiscussionFocus points everyone at one discussion item. Facilitator
// only.
func (s *Service) SetDiscussionFocus(ctx context.Context, teamID, sessionID string, actor roster.Identity, itemID string) (retro.Document, error) {
	if !actor.Facilitator() {
		return retro.Document{}, ErrForbidden
	}
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.SetDiscussionFocus(itemID)
	})
}

// StartTimer starts the countdown. Facilitator only.
func (s *Service) StartTimer(ctx context.Context, teamID, sessionID string, actor roster.Identity) (retro.Document, error) {
	if !actor.Facilitator() {
		return retro.Document{}, ErrForbidden
	}
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		return d.StartTimer(time.Now())
	})
}

// StopTimer halts the countdown. Facilitator only.
func (s *Service) StopTimer(ctx context.Context, teamID, sessionID string, actor roster.Identity) (retro.Document, error) {
	if !actor.Facilitator() {
		return retro.Document{}, ErrForbidden
	}
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		d.StopTimer(time.Now())
		return nil
	})
}

// AcknowledgeTimer clears an expired timer. Any participant may click it.
func (s *Service) AcknowledgeTimer(ctx context.Context, teamID, sessionID string, actor roster.Identity) (retro.Document, error) {
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		d.AcknowledgeTimer()
		return nil
	})
}

// ExpireTimer records an observed expiry. Called by the facilitator's
// client session exactly once per run; the idempotence guard makes
// concurrent observers harmless.
func (s *Service) ExpireTimer(ctx context.Context, teamID, sessionID string, actor roster.Identity) (retro.Document, error) {
	if !actor.Facilitator() {
		return retro.Document{}, ErrForbidden
	}
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		if !d.Settings.TimerRunning {
			return nil
		}
		d.ExpireTimer()
		return nil
	})
}

// SettingsInput carries a facilitator settings update.
type SettingsInput struct {
	MaxVotes         int    `json:"maxVotes"`
	OneVotePerTicket bool   `json:"oneVotePerTicket"`
	Anonymous        bool   `json:"anonymous"`
	RevealHappiness  bool   `json:"revealHappiness"`
	RevealRoti       bool   `json:"revealRoti"`
	RevealBrainstorm bool   `json:"revealBrainstorm"`
	ColorBy          string `json:"colorBy"`
	PanelCollapsed   bool   `json:"panelCollapsed"`
	TimerInitial     int    `json:"timerInitial"`
}

// UpdateSettings applies a facilitator settings change. A budget change
// re-runs the trim and the auto-un-finish rule for every affected user.
func (s *Service) UpdateSettings(ctx context.Context, teamID, sessionID string, actor roster.Identity, input SettingsInput) (retro.Document, error) {
	if !actor.Facilitator() {
		return retro.Document{}, ErrForbidden
	}
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		d.ApplyVoteSettings(input.MaxVotes, input.OneVotePerTicket)
		d.Settings.Anonymous = input.Anonymous
		d.Settings.RevealHappiness = input.RevealHappiness
		d.Settings.RevealRoti = input.RevealRoti
		d.Settings.RevealBrainstorm = input.RevealBrainstorm
		d.Settings.ColorBy = input.ColorBy
		d.Settings.PanelCollapsed = input.PanelCollapsed
		if input.TimerInitial > 0 {
			d.Settings.TimerInitial = input.TimerInitial
			if !d.Settings.TimerRunning {
				d.Settings.TimerSeconds = input.TimerInitial
			}
		}
		for _, userID := range append([]string(nil), d.AutoFinishedUsers...) {
			d.UnfinishIfAuto(userID)
		}
		return nil
	})
}

// SetFinished toggles the actor's manual finished mark.
func (s *Service) SetFinished(ctx context.Context, teamID, sessionID string, actor roster.Identity, finished bool) (retro.Document, error) {
	s.cancelAutoFinish(sessionID, actor.ID)
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		d.SetFinished(actor.ID, finished)
		return nil
	})
}

// MergeRoster folds a transport roster announcement into the document's
// participant list. Idempotent; called once per client per announcement
// thanks to the presence latch.
func (s *Service) MergeRoster(ctx context.Context, teamID, sessionID string, actor roster.Identity, members []retro.Participant) (retro.Document, error) {
	return s.update(ctx, teamID, sessionID, actor, func(d *retro.Document) error {
		for _, member := range members {
			if member.Color == "" {
				member.Color = roster.ColorFor(member.ID)
			}
			d.EnsureParticipant(member)
		}
		return nil
	})
}

func autoFinishKey(sessionID, userID string) string {
	return sessionID + "/" + userID
}

// scheduleAutoFinish (re)arms the debounce that marks a user finished once
// their budget stays at zero. A rapid vote-retract inside the window
// cancels it; the mark itself re-checks the budget at fire time.
func (s *Service) scheduleAutoFinish(teamID, sessionID string, actor roster.Identity) {
	key := autoFinishKey(sessionID, actor.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer := s.autoFinish[key]; timer != nil {
		timer.Stop()
	}
	s.autoFinish[key] = time.AfterFunc(s.cfg.AutoFinishDelay, func() {
		s.mu.Lock()
		delete(s.autoFinish, key)
		s.mu.Unlock()
		if _, err := s.update(context.Background(), teamID, sessionID, actor, func(d *retro.Document) error {
			d.MarkAutoFinished(actor.ID)
			return nil
		}); err != nil {
			log.Printf("auto-finish %s in %s: %v", actor.ID, sessionID, err)
		}
	})
}

// cancelAutoFinish drops a pending auto-finish mark for one user.
func (s *Service) cancelAutoFinish(sessionID, userID string) {
	key := autoFinishKey(sessionID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer := s.autoFinish[key]; timer != nil {
		timer.Stop()
		delete(s.autoFinish, key)
	}
}

// cancelSessionTimers clears every pending debounce for a session, on
// phase transitions and teardown, so a stale mutation cannot fire into the
// new phase.
func (s *Service) cancelSessionTimers(sessionID string) {
	prefix := sessionID + "/"
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, timer := range s.autoFinish {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			timer.Stop()
			delete(s.autoFinish, key)
		}
	}
}

func filterActions(actions []retro.Action, done bool) []retro.Action {
	out := make([]retro.Action, 0, len(actions))
	for _, a := range actions {
		if a.Done == done {
			out = append(out, a)
		}
	}
	return out
}
