package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcastify/pkg/domain"
	"podcastify/pkg/httpclient"
	"podcastify/pkg/metrics"
)

// stubTransport answers every request with handler, so probes against the
// fixed media host never leave the process.
type stubTransport struct {
	mu       sync.Mutex
	handler  func(req *http.Request) (*http.Response, error)
	inFlight int32
	maxSeen  int32
	calls    []string
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		prev := atomic.LoadInt32(&s.maxSeen)
		if n <= prev || atomic.CompareAndSwapInt32(&s.maxSeen, prev, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, req.Method+" "+req.URL.String())
	s.mu.Unlock()

	return s.handler(req)
}

func lengthResponse(req *http.Request, status int, length int64) *http.Response {
	return &http.Response{
		StatusCode:    status,
		ContentLength: length,
		Header:        make(http.Header),
		Body:          http.NoBody,
		Request:       req,
	}
}

func newTestEnricher(rt http.RoundTripper, opts ...Option) *Enricher {
	client := httpclient.Wrap(&http.Client{Transport: rt}, httpclient.ProbeClient)
	return NewEnricher(client, opts...)
}

func TestResolveSize_ContentLength(t *testing.T) {
	rt := &stubTransport{handler: func(req *http.Request) (*http.Response, error) {
		return lengthResponse(req, http.StatusOK, 4096000), nil
	}}
	e := newTestEnricher(rt)

	size := e.ResolveSize(context.Background(), domain.MediaURL("12345"))
	assert.Equal(t, int64(4096000), size)
	require.Len(t, rt.calls, 1)
	assert.Equal(t, "HEAD http://media.rozhlas.cz/_audio/12345.mp3", rt.calls[0])
}

func TestResolveSize_FailuresResolveToZero(t *testing.T) {
	tests := []struct {
		name    string
		handler func(req *http.Request) (*http.Response, error)
	}{
		{"transport error", func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		}},
		{"not found", func(req *http.Request) (*http.Response, error) {
			return lengthResponse(req, http.StatusNotFound, 512), nil
		}},
		{"no length", func(req *http.Request) (*http.Response, error) {
			return lengthResponse(req, http.StatusOK, -1), nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnricher(&stubTransport{handler: tt.handler})
			assert.Equal(t, int64(0), e.ResolveSize(context.Background(), domain.MediaURL("1")))
		})
	}
}

func TestResolveSize_Timeout(t *testing.T) {
	rt := &stubTransport{handler: func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}}
	reg := prometheus.NewRegistry()
	e := newTestEnricher(rt, WithProbeTimeout(30*time.Millisecond), WithMetrics(metrics.NewCollector(reg)))

	start := time.Now()
	assert.Equal(t, int64(0), e.ResolveSize(context.Background(), domain.MediaURL("slow")))
	assert.Less(t, time.Since(start), 5*time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)
	var timeouts float64
	for _, mf := range families {
		if mf.GetName() != "podcastify_probes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetLabel()[0].GetValue() == metrics.ProbeTimeout {
				timeouts = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, timeouts)
}

func TestResolveSize_AgainstServer(t *testing.T) {
	var method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Header().Set("Content-Length", "2048")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	e := NewEnricher(httpclient.Wrap(server.Client(), httpclient.ProbeClient))
	assert.Equal(t, int64(2048), e.ResolveSize(context.Background(), server.URL+"/a.mp3"))
	assert.Equal(t, http.MethodHead, method)
}

func TestEnrich_IndependentProbesKeepOrder(t *testing.T) {
	rt := &stubTransport{handler: func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/_audio/2.mp3":
			return nil, errors.New("reset by peer")
		case "/_audio/3.mp3":
			// finish last to prove order does not follow completion
			time.Sleep(20 * time.Millisecond)
			return lengthResponse(req, http.StatusOK, 300), nil
		default:
			return lengthResponse(req, http.StatusOK, 100), nil
		}
	}}
	e := newTestEnricher(rt, WithWorkers(4))

	published := time.Date(2020, time.March, 1, 20, 0, 0, 0, time.UTC)
	in := []domain.Episode{
		domain.NewEpisode("1", "a", published),
		domain.NewEpisode("2", "b", published),
		domain.NewEpisode("3", "c", published),
		domain.NewEpisode("4", "d", published),
	}

	out := e.Enrich(context.Background(), in)
	require.Len(t, out, 4)

	assert.Equal(t, []string{"1", "2", "3", "4"}, []string{out[0].ID, out[1].ID, out[2].ID, out[3].ID})
	assert.Equal(t, []int64{100, 0, 300, 100}, []int64{out[0].FileSize, out[1].FileSize, out[2].FileSize, out[3].FileSize})

	// input is not mutated
	for _, ep := range in {
		assert.Zero(t, ep.FileSize)
	}
}

func TestEnrich_BoundedConcurrency(t *testing.T) {
	rt := &stubTransport{handler: func(req *http.Request) (*http.Response, error) {
		time.Sleep(15 * time.Millisecond)
		return lengthResponse(req, http.StatusOK, 1), nil
	}}
	e := newTestEnricher(rt, WithWorkers(3))

	var in []domain.Episode
	for i := 0; i < 12; i++ {
		in = append(in, domain.NewEpisode(fmt.Sprint(i), "x", time.Now()))
	}

	out := e.Enrich(context.Background(), in)
	require.Len(t, out, 12)
	assert.LessOrEqual(t, atomic.LoadInt32(&rt.maxSeen), int32(3))
	assert.Len(t, rt.calls, 12)
}

func TestEnrich_Empty(t *testing.T) {
	e := newTestEnricher(&stubTransport{handler: func(req *http.Request) (*http.Response, error) {
		t.Error("no probe expected")
		return nil, nil
	}})
	assert.Empty(t, e.Enrich(context.Background(), nil))
}

func TestWithRateLimit(t *testing.T) {
	e := NewEnricher(nil, WithRateLimit(0))
	assert.Nil(t, e.limiter)

	e = NewEnricher(nil, WithRateLimit(0.5))
	require.NotNil(t, e.limiter)
	assert.Equal(t, 1, e.limiter.Burst())

	e = NewEnricher(nil, WithRateLimit(20))
	assert.Equal(t, 20, e.limiter.Burst())
}

func TestWithWorkers_CoercesNonPositive(t *testing.T) {
	e := NewEnricher(nil, WithWorkers(0))
	assert.Equal(t, 1, e.workers)
}
