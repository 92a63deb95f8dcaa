package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateChecker_FirstHealthyMirrorWins(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer broken.Close()

	var hitsAfter int32
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"22631":{"offset":"0x1234"}}`))
	}))
	defer good.Close()
	after := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hitsAfter, 1)
	}))
	defer after.Close()

	u := NewUpdateChecker([]string{broken.URL, good.URL, after.URL}, 2*time.Second, nil)
	msg, err := u.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Fetched correctly from "+good.URL+": 29 bytes", msg)
	assert.Zero(t, atomic.LoadInt32(&hitsAfter))
}

func TestUpdateChecker_AllMirrorsFail(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer down.Close()

	u := NewUpdateChecker([]string{down.URL, "http://127.0.0.1:1/unreachable"}, time.Second, nil)
	_, err := u.Check(context.Background())
	require.ErrorIs(t, err, ErrUpdatesUnavailable)
	assert.Equal(t, "Failed to fetch updates from all mirrors.", err.Error())
}

func TestUpdateChecker_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	u := NewUpdateChecker([]string{slow.URL}, 100*time.Millisecond, nil)
	start := time.Now()
	_, err := u.Check(context.Background())
	require.ErrorIs(t, err, ErrUpdatesUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUpdateChecker_ConcurrentChecksShareFetch(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		w.Write([]byte(strings.Repeat("x", 10)))
	}))
	defer srv.Close()

	u := NewUpdateChecker([]string{srv.URL}, 2*time.Second, nil)

	const callers = 5
	var wg, started sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		started.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			msg, err := u.Check(context.Background())
			if err == nil {
				results <- msg
			}
		}()
	}

	started.Wait()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	for msg := range results {
		assert.Equal(t, "Fetched correctly from "+srv.URL+": 10 bytes", msg)
	}
}

func TestUpdateChecker_JoinerSurvivesFirstCallerCancel(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	u := NewUpdateChecker([]string{srv.URL}, 2*time.Second, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := u.Check(firstCtx)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 1 }, time.Second, 10*time.Millisecond)

	type result struct {
		msg string
		err error
	}
	second := make(chan result, 1)
	go func() {
		msg, err := u.Check(context.Background())
		second <- result{msg, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "Fetched correctly from "+srv.URL+": 2 bytes", res.msg)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
