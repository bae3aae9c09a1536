package api

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"

	"taskboard/domain"
)

func dialRealtime(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?username=" + user
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out map[string]any
	if err := sonic.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return out
}

func TestRealtimeJoinReceivesProjectEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	b := s.board(t, "alice")
	conn := dialRealtime(t, srv, "alice")

	sendFrame(t, conn, fmt.Sprintf(`{"type":"join","projectId":%q}`, b.ID))
	ack := readFrame(t, conn)
	if ack["event"] != "joined" || ack["projectId"] != b.ID {
		t.Fatalf("unexpected ack: %v", ack)
	}

	task := s.createTask(t, "alice", b.Lists[0].ID, "from rest")
	ev := readFrame(t, conn)
	if ev["event"] != domain.TaskCreated || ev["projectId"] != b.ID {
		t.Fatalf("unexpected event: %v", ev)
	}
	data, _ := ev["data"].(map[string]any)
	if data["id"] != task.ID {
		t.Fatalf("unexpected payload: %v", ev["data"])
	}

	rec := s.do(t, http.MethodDelete, "/api/tasks/"+task.ID, "alice", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	ev = readFrame(t, conn)
	data, _ = ev["data"].(map[string]any)
	if ev["event"] != domain.TaskDeleted || data["taskId"] != task.ID || len(data) != 1 {
		t.Fatalf("unexpected delete event: %v", ev)
	}

	sendFrame(t, conn, fmt.Sprintf(`{"type":"leave","projectId":%q}`, b.ID))
	if ack := readFrame(t, conn); ack["event"] != "left" {
		t.Fatalf("unexpected leave ack: %v", ack)
	}
	deadline := time.Now().Add(time.Second)
	for s.hub.Members(b.ID) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription still joined after leave")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRealtimeRefusesForeignProject(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	alice := s.board(t, "alice")
	conn := dialRealtime(t, srv, "mallory")

	sendFrame(t, conn, fmt.Sprintf(`{"type":"join","projectId":%q}`, alice.ID))
	reply := readFrame(t, conn)
	if reply["event"] != "error" {
		t.Fatalf("expected error reply, got %v", reply)
	}
	data, _ := reply["data"].(map[string]any)
	if data["error"] != "Project not found" {
		t.Fatalf("unexpected error payload: %v", reply["data"])
	}
	if n := s.hub.Members(alice.ID); n != 0 {
		t.Fatalf("expected no members, got %d", n)
	}

	sendFrame(t, conn, `{"type":"shout","projectId":"x"}`)
	if reply := readFrame(t, conn); reply["event"] != "error" {
		t.Fatalf("expected error for unknown frame, got %v", reply)
	}
}

func TestRealtimeRequiresIdentity(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err == nil {
		t.Fatal("expected dial without identity to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}
}

func TestEventStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	b := s.board(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/projects/"+b.ID+"/stream", nil)
	req.Header.Set(HeaderUsername, "alice")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || line != ": connected\n" {
		t.Fatalf("expected connected comment, got %q (%v)", line, err)
	}
	_, _ = reader.ReadString('\n')

	task := s.createTask(t, "alice", b.Lists[0].ID, "streamed")

	eventLine, _ := reader.ReadString('\n')
	dataLine, _ := reader.ReadString('\n')
	if eventLine != "event: "+domain.TaskCreated+"\n" {
		t.Fatalf("unexpected event line %q", eventLine)
	}
	if !strings.HasPrefix(dataLine, "data: ") || !strings.Contains(dataLine, task.ID) {
		t.Fatalf("unexpected data line %q", dataLine)
	}
}

func TestEventStreamForeignProject(t *testing.T) {
	s := newTestServer(t)
	alice := s.board(t, "alice")
	rec := s.do(t, http.MethodGet, "/api/projects/"+alice.ID+"/stream", "bob", "")
	expectError(t, rec, http.StatusNotFound, "Project not found")
}
