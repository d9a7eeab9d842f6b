package signaling_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rivulet-chat/rivulet/pkg/event"
	"github.com/rivulet-chat/rivulet/pkg/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relayStub is a single-connection relay: it records the registered endpoint
// id and bounces every received envelope back verbatim, which is what the
// real relay does for a self-addressed event.
type relayStub struct {
	upgrader websocket.Upgrader
	endpoint chan string
}

func (s *relayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.endpoint <- r.URL.Query().Get("endpoint")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var envelope event.Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			return
		}
		if err := conn.WriteJSON(envelope); err != nil {
			return
		}
	}
}

func startStub(t *testing.T) (*relayStub, string) {
	t.Helper()
	stub := &relayStub{endpoint: make(chan string, 1)}
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)
	return stub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClient_RegistersAndRoundTrips(t *testing.T) {
	stub, url := startStub(t)

	client, err := signaling.Connect(signaling.Config{URL: url, EndpointID: "alice"})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	assert.Equal(t, "alice", <-stub.endpoint)

	envelope, err := event.NewEnvelope(event.EndCall, "bob", event.AnswerCallPayload{CallID: "call-1"})
	require.NoError(t, err)
	require.NoError(t, client.Send(envelope))

	select {
	case received := <-client.Events():
		assert.Equal(t, event.EndCall, received.Event)
		assert.Equal(t, "alice", received.From)

		var payload event.AnswerCallPayload
		require.NoError(t, received.Decode(&payload))
		assert.Equal(t, "call-1", payload.CallID)
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope received from relay")
	}
}

func TestClient_EventsClosedOnDisconnect(t *testing.T) {
	_, url := startStub(t)

	client, err := signaling.Connect(signaling.Config{URL: url, EndpointID: "alice"})
	require.NoError(t, err)

	client.Close()

	select {
	case _, open := <-client.Events():
		assert.False(t, open, "events channel must close when the relay connection drops")
	case <-time.After(2 * time.Second):
		t.Fatal("events channel did not close")
	}
}

func TestConnect_RejectsInvalidConfig(t *testing.T) {
	_, err := signaling.Connect(signaling.Config{})
	assert.Error(t, err)

	_, err = signaling.Connect(signaling.Config{URL: "ws://relay.local"})
	assert.Error(t, err)
}
