package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckwmsfield/internal/events"
	"github.com/xelth-com/eckwmsfield/internal/testserver"
)

func TestMonitor_Transitions(t *testing.T) {
	srv := testserver.New()
	ts := srv.Start()
	defer ts.Close()

	bus := events.NewBus()
	ch, unsub := bus.Subscribe()
	defer unsub()

	m := NewMonitor(ts.URL, time.Hour, time.Second, bus, nil)
	require.False(t, m.IsConnected())

	var mu sync.Mutex
	var seen []bool
	m.Subscribe(func(c bool) {
		mu.Lock()
		seen = append(seen, c)
		mu.Unlock()
	})

	ctx := context.Background()
	require.True(t, m.Check(ctx))
	require.True(t, m.Check(ctx)) // no transition

	srv.SetOnline(false)
	require.False(t, m.Check(ctx))
	require.False(t, m.IsConnected())

	srv.SetOnline(true)
	require.True(t, m.Check(ctx))

	mu.Lock()
	require.Equal(t, []bool{true, false, true}, seen)
	mu.Unlock()

	for _, want := range []bool{true, false, true} {
		e := <-ch
		require.Equal(t, events.ConnectivityChanged, e.Type)
		require.Equal(t, want, e.Payload)
	}

	st := m.Status()
	require.Equal(t, 3, st.SuccessCount)
	require.NotNil(t, st.LastFailure)
	require.True(t, st.IsAvailable)
}

func TestMonitor_NonSuccessIsDisconnected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	m := NewMonitor(ts.URL, time.Hour, time.Second, nil, nil)
	require.False(t, m.Check(context.Background()))
	require.Equal(t, 1, m.Status().FailureCount)
}

func TestMonitor_UnreachableHost(t *testing.T) {
	m := NewMonitor("http://127.0.0.1:1", time.Hour, 200*time.Millisecond, nil, nil)
	require.False(t, m.Check(context.Background()))
}

func TestMonitor_StartStop(t *testing.T) {
	srv := testserver.New()
	ts := srv.Start()
	defer ts.Close()

	m := NewMonitor(ts.URL, 10*time.Millisecond, time.Second, nil, nil)
	connected := make(chan struct{}, 1)
	unsub := m.Subscribe(func(c bool) {
		if c {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	defer unsub()

	m.Start(context.Background())
	m.Start(context.Background())
	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never reported connected")
	}

	require.Eventually(t, func() bool { return m.Status().SuccessCount >= 2 }, 2*time.Second, 10*time.Millisecond)
	m.Stop()
	m.Stop()

	n := m.Status().SuccessCount
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, n, m.Status().SuccessCount)
}
