package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsechat/pulse-server/internal/store"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func noEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v received: %+v", kind, ev)
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// fakeRoomStore is an in-memory store.RoomStore with error injection.
type fakeRoomStore struct {
	mu       sync.Mutex
	rooms    map[string]*store.Room
	messages map[string][]*store.Message // roomID -> append order
	reads    map[string]map[string]struct{}

	failList bool
	failGet  bool
	failAdd  bool

	// one-shot gate for the next AddMessage call
	addEntered chan struct{}
	addBlock   chan struct{}
}

func newFakeRoomStore() *fakeRoomStore {
	return &fakeRoomStore{
		rooms:    make(map[string]*store.Room),
		messages: make(map[string][]*store.Message),
		reads:    make(map[string]map[string]struct{}),
	}
}

func (f *fakeRoomStore) addRoom(id string, roomType store.RoomType, participants ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[id] = &store.Room{
		ID:           id,
		Type:         roomType,
		Participants: participants,
		CreatedAt:    time.Now(),
	}
}

func (f *fakeRoomStore) CreateRoom(_ context.Context, room *store.Room) (*store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[room.ID] = room
	return room, nil
}

func (f *fakeRoomStore) GetRoom(_ context.Context, id string) (*store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, store.ErrUnavailable
	}
	room, ok := f.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *room
	copied.Participants = append([]string(nil), room.Participants...)
	return &copied, nil
}

func (f *fakeRoomStore) UpdateRoom(_ context.Context, id string, patch store.RoomPatch) (*store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.Name != nil {
		room.Name = *patch.Name
	}
	if patch.Avatar != nil {
		room.Avatar = *patch.Avatar
	}
	if patch.AddParticipant != nil && !room.HasParticipant(*patch.AddParticipant) {
		room.Participants = append(room.Participants, *patch.AddParticipant)
	}
	if patch.RemoveParticipant != nil {
		kept := room.Participants[:0]
		for _, p := range room.Participants {
			if p != *patch.RemoveParticipant {
				kept = append(kept, p)
			}
		}
		room.Participants = kept
	}
	copied := *room
	copied.Participants = append([]string(nil), room.Participants...)
	return &copied, nil
}

func (f *fakeRoomStore) DeleteRoom(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[id]; !ok {
		return false, nil
	}
	delete(f.rooms, id)
	delete(f.messages, id)
	return true, nil
}

func (f *fakeRoomStore) ListUserRooms(_ context.Context, userID string) ([]*store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, store.ErrUnavailable
	}
	var rooms []*store.Room
	for _, room := range f.rooms {
		if room.HasParticipant(userID) {
			copied := *room
			rooms = append(rooms, &copied)
		}
	}
	return rooms, nil
}

// stallNextAdd arms a one-shot gate: the next AddMessage call signals
// entered and then blocks until release is called.
func (f *fakeRoomStore) stallNextAdd() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := make(chan struct{})
	b := make(chan struct{})
	f.addEntered, f.addBlock = e, b
	return e, func() { close(b) }
}

func (f *fakeRoomStore) AddMessage(_ context.Context, msg *store.Message) error {
	f.mu.Lock()
	entered, block := f.addEntered, f.addBlock
	f.addEntered, f.addBlock = nil, nil
	f.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd {
		return store.ErrUnavailable
	}
	copied := *msg
	f.messages[msg.RoomID] = append(f.messages[msg.RoomID], &copied)
	return nil
}

func (f *fakeRoomStore) GetMessages(_ context.Context, roomID string, limit int, beforeID string) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.messages[roomID]
	// newest first
	var result []*store.Message
	include := beforeID == ""
	for i := len(history) - 1; i >= 0; i-- {
		if !include {
			if history[i].ID == beforeID {
				include = true
			}
			continue
		}
		result = append(result, history[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (f *fakeRoomStore) MarkRead(_ context.Context, roomID, messageID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	for _, msg := range f.messages[roomID] {
		if msg.ID == messageID {
			found = true
			break
		}
	}
	if !found {
		return store.ErrNotFound
	}
	if f.reads[messageID] == nil {
		f.reads[messageID] = make(map[string]struct{})
	}
	f.reads[messageID][userID] = struct{}{}
	return nil
}

func (f *fakeRoomStore) messageOrder(roomID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.messages[roomID]))
	for _, msg := range f.messages[roomID] {
		ids = append(ids, msg.ID)
	}
	return ids
}

func (f *fakeRoomStore) messageCount(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[roomID])
}
