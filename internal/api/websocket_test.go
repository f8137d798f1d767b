package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openbeamline/beamcore/internal/beamline"
)

// dialWS connects a test WebSocket client with the given token.
func dialWS(t *testing.T, f *testFixture, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("websocket dial failed (status %d): %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one envelope with a deadline.
func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading websocket message: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshalling envelope: %v", err)
	}
	return msg
}

func TestWebSocketRequiresToken(t *testing.T) {
	f := newTestFixture(t)

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 upgrade rejection, got %+v", resp)
	}
}

func TestWebSocketHelloAndBroadcast(t *testing.T) {
	f := newTestFixture(t)
	token := f.login(t)

	conn := dialWS(t, f, token)

	hello := readMessage(t, conn)
	if hello.Type != WSTypeHello {
		t.Fatalf("expected hello, got %q", hello.Type)
	}

	// Give the hub time to register the client before broadcasting.
	deadline := time.Now().Add(time.Second)
	for f.server.Hub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	f.server.Hub().StateTransition(beamline.Transition{
		DeviceID: "dev-valve", Slug: "sb2-valve", From: "in", To: "out",
	})

	msg := readMessage(t, conn)
	if msg.Type != WSTypeStateChanged {
		t.Fatalf("expected state_changed, got %q", msg.Type)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("unexpected payload shape: %T", msg.Payload)
	}
	if payload["slug"] != "sb2-valve" || payload["to"] != "out" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}
