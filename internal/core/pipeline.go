package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsechat/pulse-server/internal/store"
	"github.com/pulsechat/pulse-server/internal/utils"
)

// Pipeline is the authoritative path from "user submitted content for a
// room" to "all reachable participants have it". Stages per message:
// validate, persist, fan out, acknowledge. Persistence is the delivery
// contract; live push is best effort.
type Pipeline struct {
	store        store.RoomStore
	cache        *MembershipCache
	registry     *Registry
	log          *zerolog.Logger
	senders      *senderLocks
	maxContent   int
	storeTimeout time.Duration
}

// NewPipeline constructs a message pipeline.
func NewPipeline(st store.RoomStore, cache *MembershipCache, registry *Registry, logger *zerolog.Logger, maxContent int, storeTimeout time.Duration) *Pipeline {
	if maxContent <= 0 {
		maxContent = 4096
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Pipeline{
		store:        st,
		cache:        cache,
		registry:     registry,
		log:          logger,
		senders:      newSenderLocks(),
		maxContent:   maxContent,
		storeTimeout: storeTimeout,
	}
}

// Send validates, persists, and fans out a message. The returned message
// carries the canonical server-assigned id and timestamp. The *Error is
// non-nil when the message was rejected before persistence; fan-out
// failures to individual recipients never surface here.
func (p *Pipeline) Send(ctx context.Context, sender Identity, roomID, content string) (*store.Message, *Error) {
	// Validate
	if roomID == "" {
		return nil, validationError("room is required")
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, validationError("message content is empty")
	}
	if len(content) > p.maxContent {
		return nil, validationError("message content too long")
	}

	if !p.cache.IsSubscribed(sender.ID, roomID) {
		// Cache miss may be cross-process staleness; re-check the store
		// before rejecting.
		room, err := p.getRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if !room.HasParticipant(sender.ID) {
			return nil, notAuthorizedError("not a participant of this room")
		}
		p.cache.Subscribe(sender.ID, roomID)
	}

	// A sender's persist and fan-out stages run one at a time across all
	// of their connections, so a multi-device user cannot interleave
	// their own messages.
	lock := p.senders.acquire(sender.ID)
	defer p.senders.release(sender.ID, lock)

	// Persist. Client-supplied timestamps are advisory only; the canonical
	// id and timestamp are assigned here. This is the point of no return.
	msg := &store.Message{
		ID:        utils.NewID(),
		RoomID:    roomID,
		Sender:    sender.ID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	err := p.store.AddMessage(storeCtx, msg)
	cancel()
	if err != nil {
		p.log.Error().Err(err).Str("room", roomID).Str("sender", sender.ID).Msg("persist message failed")
		return nil, mapStoreError(err, "room")
	}

	// Fan out to the room's current participant list, read fresh from the
	// store rather than the sender's local view.
	p.fanOut(ctx, msg)

	return msg, nil
}

func (p *Pipeline) fanOut(ctx context.Context, msg *store.Message) {
	room, err := p.getRoom(ctx, msg.RoomID)
	if err != nil {
		// The message is durable; losing one live push is acceptable.
		p.log.Warn().Str("room", msg.RoomID).Str("msg_id", msg.ID).Msg("fan-out skipped: room fetch failed")
		return
	}

	ev := &Event{Kind: EventRoomMessage, Room: msg.RoomID, Message: msg}
	for _, userID := range room.Participants {
		conns := p.registry.Connections(userID)
		if len(conns) == 0 {
			// Offline participants rely on history fetch on reconnect.
			continue
		}
		for _, c := range conns {
			if !c.send(ev) {
				p.log.Warn().Str("conn", c.ID).Str("user", userID).Str("msg_id", msg.ID).Msg("fan-out dropped: slow consumer")
			}
		}
	}
}

// MarkRead records a read receipt and fans out a read event to the
// room's participants.
func (p *Pipeline) MarkRead(ctx context.Context, reader Identity, roomID, messageID string) *Error {
	if roomID == "" || messageID == "" {
		return validationError("room and message id are required")
	}
	if !p.cache.IsSubscribed(reader.ID, roomID) {
		room, err := p.getRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if !room.HasParticipant(reader.ID) {
			return notAuthorizedError("not a participant of this room")
		}
		p.cache.Subscribe(reader.ID, roomID)
	}

	storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	err := p.store.MarkRead(storeCtx, roomID, messageID, reader.ID)
	cancel()
	if err != nil {
		return mapStoreError(err, "message")
	}

	ev := &Event{Kind: EventRead, Room: roomID, User: reader.ID, MessageID: messageID}
	p.broadcastLocal(roomID, ev, "")
	return nil
}

// broadcastLocal pushes an event to every connection of every user
// subscribed to the room on this process, skipping exceptConn.
func (p *Pipeline) broadcastLocal(roomID string, ev *Event, exceptConn string) {
	for _, userID := range p.cache.RoomUsers(roomID) {
		for _, c := range p.registry.Connections(userID) {
			if c.ID == exceptConn {
				continue
			}
			if !c.send(ev) {
				p.log.Warn().Str("conn", c.ID).Str("room", roomID).Msg("broadcast dropped: slow consumer")
			}
		}
	}
}

func (p *Pipeline) getRoom(ctx context.Context, roomID string) (*store.Room, *Error) {
	storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	room, err := p.store.GetRoom(storeCtx, roomID)
	if err != nil {
		return nil, mapStoreError(err, "room")
	}
	return room, nil
}

func mapStoreError(err error, entity string) *Error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFoundError(entity + " not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, store.ErrUnavailable):
		return storeUnavailableError("store unavailable, retry later")
	default:
		return storeUnavailableError("store operation failed, retry later")
	}
}

// senderLocks hands out one mutex per user id so the pipeline can hold
// a sender's messages mutually exclusive regardless of which of their
// connections submitted them. Entries are reference-counted and removed
// once no send is holding or waiting on them.
type senderLocks struct {
	mu    sync.Mutex
	locks map[string]*senderLock
}

type senderLock struct {
	sync.Mutex
	refs int
}

func newSenderLocks() *senderLocks {
	return &senderLocks{locks: make(map[string]*senderLock)}
}

func (s *senderLocks) acquire(userID string) *senderLock {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &senderLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return l
}

func (s *senderLocks) release(userID string, l *senderLock) {
	l.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, userID)
	}
	s.mu.Unlock()
}
