package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pulsechat/pulse-server/internal/store"
)

func apiRequest(t *testing.T, ts *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestRoomsRequireAuth(t *testing.T) {
	ts, _, _ := startTestServer(t)

	resp := apiRequest(t, ts, http.MethodGet, "/api/rooms", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCreateAndListRooms(t *testing.T) {
	ts, _, cfg := startTestServer(t)
	alice := testToken(t, cfg, "alice")

	resp := apiRequest(t, ts, http.MethodPost, "/api/rooms", alice, CreateRoomRequest{
		Type:         "group",
		Name:         "general",
		Participants: []string{"bob", "alice", "bob"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[RoomResponse](t, resp)
	if created.ID == "" || created.Type != "group" || created.Name != "general" {
		t.Fatalf("unexpected room: %+v", created)
	}
	// Creator first, duplicates collapsed.
	want := []string{"alice", "bob"}
	if len(created.Participants) != len(want) {
		t.Fatalf("unexpected participants: %v", created.Participants)
	}
	for i, p := range want {
		if created.Participants[i] != p {
			t.Fatalf("unexpected participants: %v", created.Participants)
		}
	}

	resp = apiRequest(t, ts, http.MethodGet, "/api/rooms", alice, nil)
	rooms := decodeJSON[[]RoomResponse](t, resp)
	if len(rooms) != 1 || rooms[0].ID != created.ID {
		t.Fatalf("unexpected room list: %+v", rooms)
	}

	// A non-participant sees nothing.
	resp = apiRequest(t, ts, http.MethodGet, "/api/rooms", testToken(t, cfg, "mallory"), nil)
	rooms = decodeJSON[[]RoomResponse](t, resp)
	if len(rooms) != 0 {
		t.Fatalf("expected empty list, got %+v", rooms)
	}
}

func TestCreateDirectRoomValidation(t *testing.T) {
	ts, _, cfg := startTestServer(t)
	alice := testToken(t, cfg, "alice")

	resp := apiRequest(t, ts, http.MethodPost, "/api/rooms", alice, CreateRoomRequest{
		Type:         "direct",
		Participants: []string{"bob", "carol"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for three-party direct room, got %d", resp.StatusCode)
	}

	resp = apiRequest(t, ts, http.MethodPost, "/api/rooms", alice, CreateRoomRequest{
		Type:         "direct",
		Participants: []string{"bob"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[RoomResponse](t, resp)
	if created.Type != "direct" || len(created.Participants) != 2 {
		t.Fatalf("unexpected room: %+v", created)
	}
}

func TestGetRoomAuthorization(t *testing.T) {
	ts, roomStore, cfg := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := roomStore.CreateRoom(ctx, &store.Room{
		ID:           "r1",
		Type:         store.RoomTypeGroup,
		Participants: []string{"alice"},
	}); err != nil {
		t.Fatalf("create room: %v", err)
	}

	resp := apiRequest(t, ts, http.MethodGet, "/api/rooms/r1", testToken(t, cfg, "alice"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	room := decodeJSON[RoomResponse](t, resp)
	if room.ID != "r1" {
		t.Fatalf("unexpected room: %+v", room)
	}

	resp = apiRequest(t, ts, http.MethodGet, "/api/rooms/r1", testToken(t, cfg, "mallory"), nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	resp = apiRequest(t, ts, http.MethodGet, "/api/rooms/nope", testToken(t, cfg, "alice"), nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUpdateRoomMetadata(t *testing.T) {
	ts, roomStore, cfg := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := roomStore.CreateRoom(ctx, &store.Room{
		ID:           "r1",
		Type:         store.RoomTypeGroup,
		Name:         "old",
		Participants: []string{"alice"},
	}); err != nil {
		t.Fatalf("create room: %v", err)
	}

	name := "renamed"
	resp := apiRequest(t, ts, http.MethodPatch, "/api/rooms/r1", testToken(t, cfg, "alice"), UpdateRoomRequest{Name: &name})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	room := decodeJSON[RoomResponse](t, resp)
	if room.Name != "renamed" {
		t.Fatalf("unexpected name: %q", room.Name)
	}
}

func TestDeleteRoom(t *testing.T) {
	ts, roomStore, cfg := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := roomStore.CreateRoom(ctx, &store.Room{
		ID:           "g1",
		Type:         store.RoomTypeGroup,
		Participants: []string{"alice"},
	}); err != nil {
		t.Fatalf("create group room: %v", err)
	}
	if _, err := roomStore.CreateRoom(ctx, &store.Room{
		ID:           "d1",
		Type:         store.RoomTypeDirect,
		Participants: []string{"alice", "bob"},
	}); err != nil {
		t.Fatalf("create direct room: %v", err)
	}

	alice := testToken(t, cfg, "alice")

	resp := apiRequest(t, ts, http.MethodDelete, "/api/rooms/d1", alice, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("direct room delete should be rejected, got %d", resp.StatusCode)
	}

	resp = apiRequest(t, ts, http.MethodDelete, "/api/rooms/g1", alice, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	if _, err := roomStore.GetRoom(ctx, "g1"); err == nil {
		t.Fatal("room still exists after delete")
	}
}

func TestGetMessagesEndpoint(t *testing.T) {
	ts, roomStore, cfg := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := roomStore.CreateRoom(ctx, &store.Room{
		ID:           "r1",
		Type:         store.RoomTypeGroup,
		Participants: []string{"alice"},
	}); err != nil {
		t.Fatalf("create room: %v", err)
	}
	for i, text := range []string{"first", "second", "third"} {
		msg := &store.Message{
			ID:        fmt.Sprintf("m%d", i+1),
			RoomID:    "r1",
			Sender:    "alice",
			Content:   text,
			CreatedAt: time.Now().UTC(),
		}
		if err := roomStore.AddMessage(ctx, msg); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}

	resp := apiRequest(t, ts, http.MethodGet, "/api/rooms/r1/messages?limit=2", testToken(t, cfg, "alice"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	msgs := decodeJSON[[]MessageResponse](t, resp)
	if len(msgs) != 2 || msgs[0].Text != "third" || msgs[1].Text != "second" {
		t.Fatalf("unexpected page: %+v", msgs)
	}

	resp = apiRequest(t, ts, http.MethodGet, "/api/rooms/r1/messages?before="+msgs[1].ID, testToken(t, cfg, "alice"), nil)
	older := decodeJSON[[]MessageResponse](t, resp)
	if len(older) != 1 || older[0].Text != "first" {
		t.Fatalf("unexpected older page: %+v", older)
	}
}
