// Package conversations keeps the signed-in user's conversation list and
// the messages of the active conversation consistent with the platform
// change feed. Reconciliation is refetch-on-notification: every change
// event triggers a full enriched refresh rather than a patch-in-place, so
// display names, titles and previews are always recomputed together.
package conversations

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"livelocal/internal/app/notices"
	"livelocal/internal/domain/chat"
	"livelocal/internal/domain/experience"
	"livelocal/internal/domain/user"
	"livelocal/internal/platform/schema"
	"livelocal/internal/remote"
)

// State tracks the per-session lifecycle. Sign-out reverts to Uninitialized
// and drops all rows and subscriptions.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
)

// Store is the single source of truth for "my conversations" and the
// active conversation's messages.
type Store struct {
	svc    remote.Service
	log    *slog.Logger
	toasts notices.Notifier

	mu            sync.Mutex
	state         State
	userID        string
	gen           int
	conversations []chat.ConversationView
	activeID      string
	messages      []chat.Message
	loading       bool
	convSub       remote.Subscription
	msgSub        remote.Subscription
	authSub       remote.Subscription
}

func New(svc remote.Service, logger *slog.Logger, toasts notices.Notifier) *Store {
	if toasts == nil {
		toasts = notices.Discard{}
	}
	return &Store{
		svc:    svc,
		log:    logger,
		toasts: toasts,
		state:  StateUninitialized,
	}
}

// Start hooks the store to auth state and initializes for the current user
// if one is already signed in.
func (s *Store) Start(ctx context.Context) {
	s.authSub = s.svc.Auth().OnAuthStateChange(func(u *remote.User) {
		s.teardown()
		if u != nil {
			s.initFor(context.Background(), u.ID)
		}
	})
	if u := s.svc.Auth().CurrentUser(); u != nil {
		s.initFor(ctx, u.ID)
	}
}

// Close tears the store down entirely.
func (s *Store) Close() {
	if s.authSub != nil {
		s.authSub.Unsubscribe()
		s.authSub = nil
	}
	s.teardown()
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Conversations returns a snapshot of the enriched conversation list,
// newest activity first.
func (s *Store) Conversations() []chat.ConversationView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.ConversationView, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// ActiveConversation returns the id of the conversation being viewed, or "".
func (s *Store) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Messages returns a snapshot of the active conversation's messages in
// created_at ascending order.
func (s *Store) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) initFor(ctx context.Context, userID string) {
	s.mu.Lock()
	s.state = StateLoading
	s.userID = userID
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	participant := participantFilter(userID)
	convSub, err := s.svc.Subscribe(schema.TableConversations, participant, func(remote.Event) {
		s.refreshConversations(context.Background(), true)
	})
	if err != nil {
		s.logError("conversation subscription failed", err)
	}
	// The message feed is unfiltered: any insert refreshes the list so
	// previews and ordering stay current, and inserts for the active
	// conversation additionally refetch its messages. A resync marks a
	// feed gap, so both the list and the open thread refetch.
	msgSub, err := s.svc.Subscribe(schema.TableMessages, remote.Filter{}, func(event remote.Event) {
		switch event.Type {
		case remote.EventInsert:
			s.refreshConversations(context.Background(), true)
			if conversationID, _ := event.Row["conversation_id"].(string); conversationID != "" && conversationID == s.ActiveConversation() {
				s.refreshMessages(context.Background(), conversationID, true)
			}
		case remote.EventResync:
			s.refreshConversations(context.Background(), true)
			if conversationID := s.ActiveConversation(); conversationID != "" {
				s.refreshMessages(context.Background(), conversationID, true)
			}
		}
	})
	if err != nil {
		s.logError("message subscription failed", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		unsubscribe(convSub)
		unsubscribe(msgSub)
		return
	}
	s.convSub = convSub
	s.msgSub = msgSub
	s.mu.Unlock()

	s.refreshConversations(ctx, false)

	s.mu.Lock()
	if s.gen == gen {
		s.state = StateReady
	}
	s.mu.Unlock()
}

func (s *Store) teardown() {
	s.mu.Lock()
	s.gen++
	s.state = StateUninitialized
	s.userID = ""
	s.conversations = nil
	s.activeID = ""
	s.messages = nil
	s.loading = false
	convSub, msgSub := s.convSub, s.msgSub
	s.convSub, s.msgSub = nil, nil
	s.mu.Unlock()
	unsubscribe(convSub)
	unsubscribe(msgSub)
}

// Refresh refetches the enriched conversation list. Fetch failures surface
// a user notice; an empty result is a valid state, not an error.
func (s *Store) Refresh(ctx context.Context) {
	s.refreshConversations(ctx, false)
}

func (s *Store) refreshConversations(ctx context.Context, background bool) {
	s.mu.Lock()
	userID := s.userID
	gen := s.gen
	if userID == "" {
		s.mu.Unlock()
		return
	}
	if !background {
		s.loading = true
	}
	s.mu.Unlock()

	views, err := s.loadConversations(ctx, userID)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if !background {
		s.loading = false
	}
	if err == nil {
		s.conversations = views
	}
	s.mu.Unlock()

	if err != nil {
		s.logError("conversation list refresh failed", err)
		if !background {
			s.toasts.Notify(notices.Error("Messages", "Could not load your conversations."))
		}
	}
}

func (s *Store) loadConversations(ctx context.Context, userID string) ([]chat.ConversationView, error) {
	rows, err := s.svc.Select(ctx, remote.SelectParams{
		Table:   schema.TableConversations,
		Filter:  participantFilter(userID),
		OrderBy: "updated_at",
		Desc:    true,
	})
	if err != nil && !errors.Is(err, remote.ErrNoRows) {
		return nil, err
	}
	list, err := remote.DecodeRows[chat.Conversation](schema.TableConversations, rows)
	if err != nil {
		return nil, err
	}
	views := make([]chat.ConversationView, 0, len(list))
	for _, conv := range list {
		views = append(views, s.enrich(ctx, conv, userID))
	}
	return views, nil
}

// enrich resolves display names, experience title, preview and unread count
// for one conversation. Each lookup degrades independently: a failed join
// falls back to a label and never aborts the list.
func (s *Store) enrich(ctx context.Context, conv chat.Conversation, userID string) chat.ConversationView {
	view := chat.ConversationView{
		Conversation: conv,
		PeerID:       conv.OtherParticipant(userID),
	}
	view.PeerName = s.peerName(ctx, conv, view.PeerID)
	if conv.ExperienceID != "" {
		view.ExperienceTitle = s.experienceTitle(ctx, conv.ExperienceID)
	}
	view.LastMessage = s.lastMessage(ctx, conv.ID)
	view.UnreadCount = s.unreadCount(ctx, conv.ID, userID)
	return view
}

// peerName falls back to "Host" for the experience-owning side of the
// thread (participant A, by the create contract) and "Guest" otherwise.
func (s *Store) peerName(ctx context.Context, conv chat.Conversation, peerID string) string {
	fallback := user.FallbackGuestName
	if peerID == conv.ParticipantA {
		fallback = user.FallbackHostName
	}
	rows, err := s.svc.Select(ctx, remote.SelectParams{
		Table:  schema.TableProfiles,
		Filter: remote.Eq("id", peerID),
		Limit:  1,
	})
	if err != nil || len(rows) == 0 {
		if err != nil && !errors.Is(err, remote.ErrNoRows) {
			s.logWarn("peer profile lookup failed", err, "conversation_id", conv.ID)
		}
		return fallback
	}
	var profile user.Profile
	if err := remote.DecodeRow(schema.TableProfiles, rows[0], &profile); err != nil {
		s.logWarn("peer profile decode failed", err, "conversation_id", conv.ID)
		return fallback
	}
	return profile.Name(fallback)
}

func (s *Store) experienceTitle(ctx context.Context, experienceID string) string {
	rows, err := s.svc.Select(ctx, remote.SelectParams{
		Table:  schema.TableExperiences,
		Filter: remote.Eq("id", experienceID),
		Limit:  1,
	})
	if err != nil || len(rows) == 0 {
		if err != nil && !errors.Is(err, remote.ErrNoRows) {
			s.logWarn("experience title lookup failed", err, "experience_id", experienceID)
		}
		return ""
	}
	var exp experience.Experience
	if err := remote.DecodeRow(schema.TableExperiences, rows[0], &exp); err != nil {
		s.logWarn("experience decode failed", err, "experience_id", experienceID)
		return ""
	}
	return exp.Title
}

func (s *Store) lastMessage(ctx context.Context, conversationID string) string {
	rows, err := s.svc.Select(ctx, remote.SelectParams{
		Table:   schema.TableMessages,
		Filter:  remote.Eq("conversation_id", conversationID),
		OrderBy: "created_at",
		Desc:    true,
		Limit:   1,
	})
	if err != nil || len(rows) == 0 {
		if err != nil && !errors.Is(err, remote.ErrNoRows) {
			s.logWarn("last message lookup failed", err, "conversation_id", conversationID)
		}
		return ""
	}
	var msg chat.Message
	if err := remote.DecodeRow(schema.TableMessages, rows[0], &msg); err != nil {
		s.logWarn("message decode failed", err, "conversation_id", conversationID)
		return ""
	}
	return msg.Content
}

func (s *Store) unreadCount(ctx context.Context, conversationID, userID string) int {
	rows, err := s.svc.Select(ctx, remote.SelectParams{
		Table: schema.TableMessages,
		Filter: remote.And(
			remote.Eq("conversation_id", conversationID),
			remote.Neq("sender_id", userID),
			remote.IsNull("read_at"),
		),
	})
	if err != nil && !errors.Is(err, remote.ErrNoRows) {
		s.logWarn("unread count lookup failed", err, "conversation_id", conversationID)
		return 0
	}
	return len(rows)
}

// SetActiveConversation switches the viewed conversation. Switching clears
// the current messages, fetches the new conversation's messages oldest
// first and marks everything addressed to the user as read (best-effort).
// Passing "" clears the active conversation.
func (s *Store) SetActiveConversation(ctx context.Context, conversationID string) {
	s.mu.Lock()
	s.activeID = conversationID
	s.messages = nil
	gen := s.gen
	s.mu.Unlock()
	if conversationID == "" {
		return
	}

	s.refreshMessages(ctx, conversationID, false)

	s.mu.Lock()
	stillActive := s.gen == gen && s.activeID == conversationID
	s.mu.Unlock()
	if stillActive {
		s.MarkAsRead(ctx, conversationID)
	}
}

func (s *Store) refreshMessages(ctx context.Context, conversationID string, background bool) {
	s.mu.Lock()
	gen := s.gen
	if !background {
		s.loading = true
	}
	s.mu.Unlock()

	rows, err := s.svc.Select(ctx, remote.SelectParams{
		Table:   schema.TableMessages,
		Filter:  remote.Eq("conversation_id", conversationID),
		OrderBy: "created_at",
	})
	var list []chat.Message
	if err == nil || errors.Is(err, remote.ErrNoRows) {
		list, err = remote.DecodeRows[chat.Message](schema.TableMessages, rows)
	}

	s.mu.Lock()
	if s.gen != gen || s.activeID != conversationID {
		s.mu.Unlock()
		return
	}
	if !background {
		s.loading = false
	}
	if err == nil {
		s.messages = list
	}
	s.mu.Unlock()

	if err != nil {
		s.logError("message refresh failed", err)
		if !background {
			s.toasts.Notify(notices.Error("Messages", "Could not load this conversation."))
		}
	}
}

// SendMessage inserts a message. It is a no-op for blank content or when
// nobody is signed in. The message is not rendered optimistically: it
// appears when the change-feed echo arrives, so the server stays the single
// source of truth and no duplicate-rendering race exists.
func (s *Store) SendMessage(ctx context.Context, conversationID, content string) error {
	content, err := chat.ValidateContent(content)
	if err != nil {
		return err
	}
	u := s.svc.Auth().CurrentUser()
	if u == nil {
		return remote.ErrUnauthenticated
	}

	_, err = s.svc.Insert(ctx, schema.TableMessages, remote.Row{
		"conversation_id": conversationID,
		"sender_id":       u.ID,
		"content":         content,
	})
	if err != nil {
		s.logError("send message failed", err)
		s.toasts.Notify(notices.Error("Messages", "Your message could not be sent."))
		return err
	}
	s.toasts.Notify(notices.Success("Messages", "Message sent."))

	// Bump the thread so list ordering and previews follow; the message
	// made it, so a failure here only costs ordering freshness.
	if _, err := s.svc.Update(ctx, schema.TableConversations, remote.Eq("id", conversationID), remote.Row{}); err != nil {
		s.logWarn("conversation touch failed", err, "conversation_id", conversationID)
	}
	return nil
}

// CreateConversation starts (or reuses) a host/guest thread about an
// experience and returns its id. The host goes first: participant A is
// always the experience host, which is what the enrichment role
// fallbacks assume. The platform enforces uniqueness per ordered
// participant pair and experience; a duplicate create resolves to the
// existing thread instead of a second one.
func (s *Store) CreateConversation(ctx context.Context, hostID, guestID, experienceID string) (string, error) {
	conv, err := chat.NewConversation(chat.CreateParams{
		ParticipantA: hostID,
		ParticipantB: guestID,
		ExperienceID: experienceID,
	})
	if err != nil {
		s.toasts.Notify(notices.Error("Messages", "Could not start the conversation."))
		return "", err
	}
	row := remote.Row{
		"participant_a": conv.ParticipantA,
		"participant_b": conv.ParticipantB,
	}
	if conv.ExperienceID != "" {
		row["experience_id"] = conv.ExperienceID
	}

	inserted, err := s.svc.Insert(ctx, schema.TableConversations, row)
	switch {
	case err == nil:
		s.toasts.Notify(notices.Success("Messages", "Conversation started."))
		s.refreshConversations(ctx, true)
		id, _ := inserted["id"].(string)
		return id, nil
	case errors.Is(err, remote.ErrDuplicate):
		id, lookupErr := s.findConversation(ctx, conv)
		if lookupErr != nil {
			s.logError("existing conversation lookup failed", lookupErr)
			s.toasts.Notify(notices.Error("Messages", "Could not start the conversation."))
			return "", lookupErr
		}
		s.toasts.Notify(notices.Success("Messages", "Conversation started."))
		return id, nil
	default:
		s.logError("create conversation failed", err)
		s.toasts.Notify(notices.Error("Messages", "Could not start the conversation."))
		return "", err
	}
}

func (s *Store) findConversation(ctx context.Context, conv *chat.Conversation) (string, error) {
	filter := remote.And(
		remote.Eq("participant_a", conv.ParticipantA),
		remote.Eq("participant_b", conv.ParticipantB),
	)
	if conv.ExperienceID != "" {
		filter = remote.And(filter, remote.Eq("experience_id", conv.ExperienceID))
	} else {
		filter = remote.And(filter, remote.IsNull("experience_id"))
	}
	rows, err := s.svc.Select(ctx, remote.SelectParams{
		Table:  schema.TableConversations,
		Filter: filter,
		Limit:  1,
	})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", chat.ErrNotFound
	}
	id, _ := rows[0]["id"].(string)
	return id, nil
}

// MarkAsRead stamps read_at on every unread message addressed to the
// current user in the conversation. Read receipts are best-effort: a
// failure is logged, never surfaced.
func (s *Store) MarkAsRead(ctx context.Context, conversationID string) {
	u := s.svc.Auth().CurrentUser()
	if u == nil {
		return
	}
	filter := remote.And(
		remote.Eq("conversation_id", conversationID),
		remote.Neq("sender_id", u.ID),
		remote.IsNull("read_at"),
	)
	if _, err := s.svc.Update(ctx, schema.TableMessages, filter, remote.Row{"read_at": remote.Timestamp(timeNow())}); err != nil {
		s.logWarn("mark read failed", err, "conversation_id", conversationID)
	}
}

// timeNow is swapped by tests that need deterministic read receipts.
var timeNow = time.Now

func participantFilter(userID string) remote.Filter {
	return remote.Or(
		remote.Eq("participant_a", userID),
		remote.Eq("participant_b", userID),
	)
}

func unsubscribe(sub remote.Subscription) {
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (s *Store) logError(msg string, err error, attrs ...any) {
	if s.log != nil {
		s.log.Error(msg, append([]any{"error", err}, attrs...)...)
	}
}

func (s *Store) logWarn(msg string, err error, attrs ...any) {
	if s.log != nil {
		s.log.Warn(msg, append([]any{"error", err}, attrs...)...)
	}
}
