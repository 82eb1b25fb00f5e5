package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/voicelinehq/voiceline/internal/auth"
	"github.com/voicelinehq/voiceline/internal/models"
)

type liveServerFrame struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

func dialLiveSession(t *testing.T, router http.Handler, path string) (*websocket.Conn, *http.Response) {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, resp
	}
	t.Cleanup(func() { conn.Close() })
	return conn, resp
}

func readLiveFrame(t *testing.T, conn *websocket.Conn) liveServerFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var frame liveServerFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	return frame
}

func TestLiveCallSession(t *testing.T) {
	router, handler, mock := setupTestRouter(t, auth.Identity{UserID: "user-1", Role: models.UserRoleUser})

	srv := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo!\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	handler.llm = newLLMClient(t, srv.URL)

	mock.ExpectQuery(`FROM calls c`).
		WithArgs("call-1", "user-1").
		WillReturnRows(callRow("call-1", "user-1", "agent-1", models.CallStatusQueued, "Receptionist", "alloy"))
	mock.ExpectQuery(`FROM agents WHERE id = \$1 AND user_id = \$2`).
		WithArgs("agent-1", "user-1").
		WillReturnRows(agentRow("agent-1", "user-1", "Receptionist", "alloy", "You greet callers.", "Hi! I'm your agent."))
	mock.ExpectQuery(`status IN`).
		WithArgs("user-1", models.CallStatusRinging, models.CallStatusInProgress).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`UPDATE calls`).
		WithArgs("call-1", "user-1", models.CallStatusInProgress).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE calls`).
		WithArgs("call-1", "user-1", models.CallStatusCompleted, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	conn, resp := dialLiveSession(t, router, "/api/calls/call-1/live")
	if conn == nil {
		t.Fatalf("websocket dial failed with status %d", resp.StatusCode)
	}

	if frame := readLiveFrame(t, conn); frame.Type != "greeting" || frame.Text != "Hi! I'm your agent." {
		t.Fatalf("expected greeting frame, got %+v", frame)
	}

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("failed to send ping: %v", err)
	}
	if frame := readLiveFrame(t, conn); frame.Type != "pong" {
		t.Fatalf("expected pong frame, got %+v", frame)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("failed to send garbage: %v", err)
	}
	if frame := readLiveFrame(t, conn); frame.Type != "error" || frame.Error != "invalid message" {
		t.Fatalf("expected invalid message error, got %+v", frame)
	}

	if err := conn.WriteJSON(map[string]string{"type": "user", "text": "Hello there"}); err != nil {
		t.Fatalf("failed to send user turn: %v", err)
	}

	var fragments []string
	for {
		frame := readLiveFrame(t, conn)
		if frame.Type == "delta" {
			fragments = append(fragments, frame.Text)
			continue
		}
		if frame.Type != "reply" {
			t.Fatalf("expected reply frame, got %+v", frame)
		}
		if frame.Text != "Hello!" {
			t.Fatalf("expected assembled reply, got %q", frame.Text)
		}
		break
	}
	if len(fragments) != 2 || fragments[0] != "Hel" || fragments[1] != "lo!" {
		t.Fatalf("expected streamed fragments in order, got %v", fragments)
	}

	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		t.Fatalf("failed to send stop: %v", err)
	}

	// The call record is closed out after the socket loop returns, so the
	// final expectations are met asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := mock.ExpectationsWereMet(); err == nil {
			return
		} else if time.Now().After(deadline) {
			t.Fatalf("unmet expectations: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLiveCallRejectsEndedCall(t *testing.T) {
	router, _, mock := setupTestRouter(t, auth.Identity{UserID: "user-1", Role: models.UserRoleUser})

	mock.ExpectQuery(`FROM calls c`).
		WithArgs("call-1", "user-1").
		WillReturnRows(callRow("call-1", "user-1", "agent-1", models.CallStatusCompleted, "Receptionist", "alloy"))

	conn, resp := dialLiveSession(t, router, "/api/calls/call-1/live")
	if conn != nil {
		t.Fatalf("expected handshake rejection, got a connection")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status 409, got %+v", resp)
	}
}

func TestLiveCallTurnFailureKeepsSessionOpen(t *testing.T) {
	router, handler, mock := setupTestRouter(t, auth.Identity{UserID: "user-1", Role: models.UserRoleUser})

	srv := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"backend exploded"}}`)
	})
	handler.llm = newLLMClient(t, srv.URL)

	mock.ExpectQuery(`FROM calls c`).
		WithArgs("call-1", "user-1").
		WillReturnRows(callRow("call-1", "user-1", "agent-1", models.CallStatusQueued, "Receptionist", "alloy"))
	mock.ExpectQuery(`FROM agents WHERE id = \$1 AND user_id = \$2`).
		WithArgs("agent-1", "user-1").
		WillReturnRows(agentRow("agent-1", "user-1", "Receptionist", "alloy", "", ""))
	mock.ExpectQuery(`status IN`).
		WithArgs("user-1", models.CallStatusRinging, models.CallStatusInProgress).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`UPDATE calls`).
		WithArgs("call-1", "user-1", models.CallStatusInProgress).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE calls`).
		WithArgs("call-1", "user-1", models.CallStatusCompleted, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	conn, resp := dialLiveSession(t, router, "/api/calls/call-1/live")
	if conn == nil {
		t.Fatalf("websocket dial failed with status %d", resp.StatusCode)
	}

	if err := conn.WriteJSON(map[string]string{"type": "user", "text": "Hello"}); err != nil {
		t.Fatalf("failed to send user turn: %v", err)
	}
	frame := readLiveFrame(t, conn)
	if frame.Type != "error" || frame.Error != "Failed to generate response" {
		t.Fatalf("expected sanitized error frame, got %+v", frame)
	}
	if strings.Contains(frame.Error, "backend exploded") {
		t.Fatalf("provider detail leaked into the error frame")
	}

	// The session must survive a failed turn.
	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("failed to send ping: %v", err)
	}
	if frame := readLiveFrame(t, conn); frame.Type != "pong" {
		t.Fatalf("expected pong after failed turn, got %+v", frame)
	}

	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		t.Fatalf("failed to send stop: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := mock.ExpectationsWereMet(); err == nil {
			return
		} else if time.Now().After(deadline) {
			t.Fatalf("unmet expectations: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
