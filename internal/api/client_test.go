package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lenconda/exampro-agent/internal/domain"
)

func TestFetchRoomTicket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exam/42/room-ticket" {
			t.Errorf("path = %q, want /exam/42/room-ticket", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("missing X-Request-Id header")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": domain.RoomTicket{
				Room:     "42",
				Identity: "alice@example.com",
				Role:     domain.RoleParticipant,
				RelayURL: "wss://relay.example.com/signaling",
				ICEServers: []domain.ICEServer{
					{URL: "stun:stun.example.com:3478"},
				},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	ticket, err := client.FetchRoomTicket("42")
	if err != nil {
		t.Fatalf("FetchRoomTicket: %v", err)
	}

	if ticket.Room != "42" {
		t.Errorf("Room = %q, want 42", ticket.Room)
	}
	if ticket.Identity != "alice@example.com" {
		t.Errorf("Identity = %q", ticket.Identity)
	}
	if ticket.Role != domain.RoleParticipant {
		t.Errorf("Role = %q", ticket.Role)
	}
	if len(ticket.ICEServers) != 1 {
		t.Errorf("ICEServers = %+v, want one entry", ticket.ICEServers)
	}
}

func TestFetchRoomTicket_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code":    403,
			"message": "exam not started",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	if _, err := client.FetchRoomTicket("42"); err == nil || !strings.Contains(err.Error(), "exam not started") {
		t.Errorf("error = %v, want API error message", err)
	}
}

func TestFetchRoomTicket_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad-token")
	if _, err := client.FetchRoomTicket("42"); err == nil || !strings.Contains(err.Error(), "http 401") {
		t.Errorf("error = %v, want http 401", err)
	}
}

func TestFetchRoomTicket_MissingRoomToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 200, "data": map[string]any{}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	if _, err := client.FetchRoomTicket("42"); err == nil {
		t.Error("expected an error when the ticket has no room token")
	}
}
