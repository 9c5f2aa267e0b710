package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsechat/pulse-server/internal/store"
)

// Router is the single entry point from the transport layer. It maps
// inbound commands to the registry, cache, pipeline, and tracker, and
// returns exactly one acknowledgement or error per request id.
type Router struct {
	registry     *Registry
	cache        *MembershipCache
	pipeline     *Pipeline
	tracker      *Tracker
	store        store.RoomStore
	log          *zerolog.Logger
	storeTimeout time.Duration
	historyLimit int
}

// NewRouter constructs the event router.
func NewRouter(registry *Registry, cache *MembershipCache, pipeline *Pipeline, tracker *Tracker, st store.RoomStore, logger *zerolog.Logger, storeTimeout time.Duration) *Router {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Router{
		registry:     registry,
		cache:        cache,
		pipeline:     pipeline,
		tracker:      tracker,
		store:        st,
		log:          logger,
		storeTimeout: storeTimeout,
		historyLimit: 50,
	}
}

// Serve runs the command loop for one connection. It hydrates the
// membership cache before registering so no event is processed, and no
// presence broadcast happens, before the user's rooms are known. The
// loop consumes commands sequentially; the pipeline's per-user lock
// extends that ordering across a sender's other connections.
func (r *Router) Serve(ctx context.Context, c *Client) {
	hydrateCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	err := r.cache.Hydrate(hydrateCtx, r.store, c.User.ID)
	cancel()
	if err != nil {
		r.log.Warn().Err(err).Str("user", c.User.ID).Msg("membership hydration failed, connection degraded")
	}

	r.registry.Register(c)
	defer r.registry.Unregister(c)

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			r.dispatch(ctx, c, cmd)
		}
	}
}

// dispatch executes one command, replaying the recorded result when the
// request id was already processed within the dedup window.
func (r *Router) dispatch(ctx context.Context, c *Client, cmd *Command) {
	if prev, ok := c.dedup.lookup(cmd.RequestID); ok {
		// A client retrying a join after a missed ack still needs the
		// history push that came with the original result.
		if cmd.Kind == CommandJoinRoom && prev.Kind == EventAck {
			r.pushHistory(ctx, c, cmd.Room)
		}
		c.send(prev)
		return
	}

	var result *Event
	switch cmd.Kind {
	case CommandJoinRoom:
		result = r.handleJoin(ctx, c, cmd)
	case CommandLeaveRoom:
		result = r.handleLeave(ctx, c, cmd)
	case CommandSendMessage:
		result = r.handleSend(ctx, c, cmd)
	case CommandTypingStart:
		result = r.handleTyping(c, cmd, true)
	case CommandTypingStop:
		result = r.handleTyping(c, cmd, false)
	case CommandReadMessage:
		result = r.handleRead(ctx, c, cmd)
	default:
		result = errorEvent(cmd.RequestID, &Error{Code: ErrCodeBadRequest, Message: "unknown command"})
	}

	c.dedup.record(cmd.RequestID, result)
	c.send(result)
}

func (r *Router) handleJoin(ctx context.Context, c *Client, cmd *Command) *Event {
	if cmd.Room == "" {
		return errorEvent(cmd.RequestID, validationError("room is required"))
	}
	if r.cache.IsDegraded(c.User.ID) {
		return errorEvent(cmd.RequestID, storeUnavailableError("membership unknown, reconnect and retry"))
	}

	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	room, err := r.store.GetRoom(storeCtx, cmd.Room)
	if err != nil {
		return errorEvent(cmd.RequestID, mapStoreError(err, "room"))
	}

	if !room.HasParticipant(c.User.ID) {
		// Direct rooms have a fixed pair of participants.
		if room.Type == store.RoomTypeDirect {
			return errorEvent(cmd.RequestID, notAuthorizedError("not a participant of this room"))
		}
		userID := c.User.ID
		room, err = r.store.UpdateRoom(storeCtx, cmd.Room, store.RoomPatch{AddParticipant: &userID})
		if err != nil {
			return errorEvent(cmd.RequestID, mapStoreError(err, "room"))
		}
	}
	// Cache mutation follows the successful store mutation, never precedes it.
	r.cache.Subscribe(c.User.ID, cmd.Room)

	r.pushHistory(ctx, c, cmd.Room)

	return ackEvent(cmd.RequestID, "")
}

// pushHistory sends the room's recent messages to one client. Failures
// are logged, not surfaced; the client can page over the REST API.
func (r *Router) pushHistory(ctx context.Context, c *Client, roomID string) {
	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	history, err := r.store.GetMessages(storeCtx, roomID, r.historyLimit, "")
	if err != nil {
		r.log.Warn().Err(err).Str("room", roomID).Msg("history fetch failed on join")
		return
	}
	c.send(&Event{Kind: EventHistory, Room: roomID, Messages: history})
}

func (r *Router) handleLeave(ctx context.Context, c *Client, cmd *Command) *Event {
	if cmd.Room == "" {
		return errorEvent(cmd.RequestID, validationError("room is required"))
	}
	if r.cache.IsDegraded(c.User.ID) {
		return errorEvent(cmd.RequestID, storeUnavailableError("membership unknown, reconnect and retry"))
	}

	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	userID := c.User.ID
	room, err := r.store.UpdateRoom(storeCtx, cmd.Room, store.RoomPatch{RemoveParticipant: &userID})
	if err != nil {
		return errorEvent(cmd.RequestID, mapStoreError(err, "room"))
	}
	r.cache.Unsubscribe(c.User.ID, cmd.Room)

	// A direct room disappears when its last participant leaves.
	if room.Type == store.RoomTypeDirect && len(room.Participants) == 0 {
		if _, err := r.store.DeleteRoom(storeCtx, cmd.Room); err != nil {
			r.log.Warn().Err(err).Str("room", cmd.Room).Msg("delete empty direct room failed")
		}
	}

	return ackEvent(cmd.RequestID, "")
}

func (r *Router) handleSend(ctx context.Context, c *Client, cmd *Command) *Event {
	if r.cache.IsDegraded(c.User.ID) {
		return errorEvent(cmd.RequestID, storeUnavailableError("membership unknown, reconnect and retry"))
	}
	msg, cerr := r.pipeline.Send(ctx, c.User, cmd.Room, cmd.Content)
	if cerr != nil {
		return errorEvent(cmd.RequestID, cerr)
	}
	return ackEvent(cmd.RequestID, msg.ID)
}

func (r *Router) handleTyping(c *Client, cmd *Command, typing bool) *Event {
	if cmd.Room == "" {
		return errorEvent(cmd.RequestID, validationError("room is required"))
	}
	if r.cache.IsDegraded(c.User.ID) {
		return errorEvent(cmd.RequestID, storeUnavailableError("membership unknown, reconnect and retry"))
	}
	if !r.cache.IsSubscribed(c.User.ID, cmd.Room) {
		return errorEvent(cmd.RequestID, notAuthorizedError("not a participant of this room"))
	}

	ev := &Event{Kind: EventTyping, Room: cmd.Room, User: c.User.ID, Typing: typing}
	r.pipeline.broadcastLocal(cmd.Room, ev, c.ID)
	return ackEvent(cmd.RequestID, "")
}

func (r *Router) handleRead(ctx context.Context, c *Client, cmd *Command) *Event {
	if r.cache.IsDegraded(c.User.ID) {
		return errorEvent(cmd.RequestID, storeUnavailableError("membership unknown, reconnect and retry"))
	}
	if cerr := r.pipeline.MarkRead(ctx, c.User, cmd.Room, cmd.MessageID); cerr != nil {
		return errorEvent(cmd.RequestID, cerr)
	}
	return ackEvent(cmd.RequestID, cmd.MessageID)
}
