package integration

import (
	"fmt"
	"testing"
	"time"

	"github.com/Tyrowin/linechat/test/testhelpers"
)

// TestGracefulShutdownWithClients verifies that stopping the server closes
// every client connection, TCP and WebSocket alike, and that Run returns
// cleanly.
func TestGracefulShutdownWithClients(t *testing.T) {
	r := testhelpers.StartApp(t, nil)

	const numClients = 3
	clients := make([]*testhelpers.LineClient, numClients)
	for i := range clients {
		clients[i] = testhelpers.DialTCP(t, r.ChatAddr())
		clients[i].Send(fmt.Sprintf("NEWUSER: user%d,pw", i))
		clients[i].Expect("USERCREATED")
	}

	ws := testhelpers.DialWebSocket(t, r.WebSocketURL())
	ws.Send("NEWUSER: browser,pw")
	ws.Expect("USERCREATED")

	if err := r.Stop(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	for _, c := range clients {
		c.ExpectClosed()
	}
	if err := ws.Conn.SetReadDeadline(time.Now().Add(testhelpers.ReadTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, _, err := ws.Conn.ReadMessage(); err == nil {
		t.Error("Expected WebSocket to be closed after shutdown")
	}
}

// TestStoppedServerRefusesConnections verifies the chat port is released.
func TestStoppedServerRefusesConnections(t *testing.T) {
	r := testhelpers.StartApp(t, nil)
	addr := r.ChatAddr()

	if err := r.Stop(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	conn, err := testhelpers.ConnectTCP(addr)
	if err == nil {
		_ = conn.Close()
		t.Fatal("Expected connection to be refused after shutdown")
	}
}
