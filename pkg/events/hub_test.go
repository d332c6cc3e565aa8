package events

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan LaunchEvent) LaunchEvent {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return LaunchEvent{}
}

func TestHub_PublishAssignsIDsPerChannel(t *testing.T) {
	hub := NewHub(10)
	defer hub.Close()

	hub.Publish("a", LaunchEvent{Outcome: OutcomeOpened})
	hub.Publish("a", LaunchEvent{Outcome: OutcomeFallback})
	hub.Publish("b", LaunchEvent{Outcome: OutcomeUnavailable})

	a := hub.Recent("a", 0)
	require.Len(t, a, 2)
	assert.Equal(t, int64(1), a[0].ID)
	assert.Equal(t, int64(2), a[1].ID)
	assert.Equal(t, "a", a[1].Channel)
	assert.NotEmpty(t, a[0].TS)

	b := hub.Recent("b", 0)
	require.Len(t, b, 1)
	assert.Equal(t, int64(1), b[0].ID)
}

func TestHub_RingOverwritesOldest(t *testing.T) {
	hub := NewHub(3)
	defer hub.Close()

	for i := 0; i < 5; i++ {
		hub.Publish("c", LaunchEvent{Outcome: OutcomeOpened})
	}
	recent := hub.Recent("c", 0)
	require.Len(t, recent, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{recent[0].ID, recent[1].ID, recent[2].ID})

	last := hub.Recent("c", 1)
	require.Len(t, last, 1)
	assert.Equal(t, int64(5), last[0].ID)
}

func TestHub_SubscribeLiveAndReplay(t *testing.T) {
	hub := NewHub(10)
	defer hub.Close()

	hub.Publish("c", LaunchEvent{Outcome: OutcomeOpened})
	hub.Publish("c", LaunchEvent{Outcome: OutcomeFallback})

	ch, unsub := hub.Subscribe("c", 1, 8)
	defer unsub()

	replayed := recv(t, ch)
	assert.Equal(t, int64(2), replayed.ID)
	assert.Equal(t, OutcomeFallback, replayed.Outcome)

	hub.Publish("c", LaunchEvent{Outcome: OutcomeUnavailable})
	live := recv(t, ch)
	assert.Equal(t, int64(3), live.ID)
}

func TestHub_UnsubscribeAndCloseCloseChannels(t *testing.T) {
	hub := NewHub(10)

	ch1, unsub := hub.Subscribe("c", 0, 1)
	unsub()
	unsub()
	_, ok := <-ch1
	assert.False(t, ok)

	ch2, _ := hub.Subscribe("c", 0, 1)
	hub.Close()
	_, ok = <-ch2
	assert.False(t, ok)

	ch3, _ := hub.Subscribe("c", 0, 1)
	_, ok = <-ch3
	assert.False(t, ok)

	hub.Publish("c", LaunchEvent{})
	assert.Empty(t, hub.Recent("c", 0))
}

func TestSSEHandler_RequiresChannelAndAuth(t *testing.T) {
	hub := NewHub(10)
	defer hub.Close()

	srv := httptest.NewServer(SSEHandler(hub, []string{"tok"}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?channel=c")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "?token=tok")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSSEHandler_StreamsReplay(t *testing.T) {
	hub := NewHub(10)
	defer hub.Close()
	hub.Publish("c", LaunchEvent{Method: "openWifiSettings", Outcome: OutcomeFallback, Requested: "wifi", Opened: "general"})

	srv := httptest.NewServer(SSEHandler(hub, nil))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"?channel=c", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "0")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// since=0 subscribes live only; publish after the stream is open.
	go func() {
		time.Sleep(100 * time.Millisecond)
		hub.Publish("c", LaunchEvent{Method: "openWifiSettings", Outcome: OutcomeOpened, Requested: "wifi", Opened: "wifi"})
	}()

	rd := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	var evt LaunchEvent
	require.NoError(t, json.Unmarshal([]byte(data), &evt))
	assert.Equal(t, int64(2), evt.ID)
	assert.Equal(t, OutcomeOpened, evt.Outcome)
	assert.Equal(t, "c", evt.Channel)
}

func TestTokenAllowed(t *testing.T) {
	assert.True(t, tokenAllowed("a", []string{" a "}))
	assert.False(t, tokenAllowed("", []string{"a"}))
	assert.False(t, tokenAllowed("b", []string{"a", ""}))
}

func TestLastSeenID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/events?channel=c&since=3", nil)
	assert.Equal(t, int64(3), lastSeenID(r))

	r.Header.Set("Last-Event-ID", "7")
	assert.Equal(t, int64(7), lastSeenID(r))

	r = httptest.NewRequest(http.MethodGet, "/events?channel=c&since=abc", nil)
	assert.Equal(t, int64(0), lastSeenID(r))
}

func TestIsAuthorized(t *testing.T) {
	tokens := []string{"tok"}

	r := httptest.NewRequest(http.MethodGet, "/events?token=tok", nil)
	assert.True(t, isAuthorized(r, tokens))

	r = httptest.NewRequest(http.MethodGet, "/events", nil)
	r.Header.Set("Authorization", "bearer tok")
	assert.True(t, isAuthorized(r, tokens))

	r.Header.Set("Authorization", "Basic tok")
	assert.False(t, isAuthorized(r, tokens))
}

func TestHub_UnsubscribeDropsUnusedChannels(t *testing.T) {
	hub := NewHub(10)
	defer hub.Close()

	for i := 0; i < 100; i++ {
		_, unsub := hub.Subscribe("ghost-"+strconv.Itoa(i), 0, 1)
		unsub()
	}
	hub.Publish("real", LaunchEvent{Outcome: OutcomeOpened})
	_, unsub := hub.Subscribe("real", 0, 1)
	unsub()

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Len(t, hub.channels, 1)
	assert.Contains(t, hub.channels, "real")
}
