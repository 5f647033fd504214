package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// testServer upgrades one connection and hands it to serve.
func testServer(t *testing.T, serve func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		serve(conn, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func dialTest(t *testing.T, ts *httptest.Server, cfg Config) *Client {
	t.Helper()

	cfg.Host = strings.TrimPrefix(ts.URL, "http://")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestFramesArriveInOrder(t *testing.T) {
	ts := testServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for _, payload := range []string{"one", "two", "three"} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	client := dialTest(t, ts, Config{})

	var got []string
	for data := range client.Frames() {
		got = append(got, string(data))
	}

	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("received %d frames, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, got[i], want[i])
		}
	}
	if err := client.Err(); err != nil {
		t.Errorf("clean close reported error: %v", err)
	}
}

func TestSendReachesServer(t *testing.T) {
	received := make(chan string, 1)
	ts := testServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(data)
	})

	client := dialTest(t, ts, Config{})

	if err := client.Send([]byte(`{"kind":"prompt","prompt":"hi"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case got := <-received:
		if got != `{"kind":"prompt","prompt":"hi"}` {
			t.Errorf("server received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestTokenSentAsCookie(t *testing.T) {
	cookie := make(chan string, 1)
	ts := testServer(t, func(conn *websocket.Conn, r *http.Request) {
		c, err := r.Cookie("SESSION_TOKEN")
		if err != nil {
			cookie <- ""
			return
		}
		cookie <- c.Value
	})

	dialTest(t, ts, Config{Token: "abc123"})

	select {
	case got := <-cookie:
		if got != "abc123" {
			t.Errorf("SESSION_TOKEN cookie = %q, want abc123", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the handshake")
	}
}

func TestAbruptLossSurfacesError(t *testing.T) {
	ts := testServer(t, func(conn *websocket.Conn, _ *http.Request) {
		// Drop the TCP connection without a close handshake.
		conn.UnderlyingConn().Close()
	})

	client := dialTest(t, ts, Config{})

	for range client.Frames() {
	}
	if client.Err() == nil {
		t.Error("abrupt connection loss should surface an error")
	}
}
