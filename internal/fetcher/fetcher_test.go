package fetcher

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipe-hub/recipe-hub/internal/cache"
)

const imageURL = "https://d3jbb8n5wk0qxi.cloudfront.net/photos/apple-pie/small.jpg"

func TestFetchServesCacheWithoutTransport(t *testing.T) {
	store := newTestStore(t)
	payload := pngBytes(t, color.White)
	require.NoError(t, store.Put(context.Background(), imageURL, payload))

	transport := &countingTransport{resp: &Response{Body: pngBytes(t, color.Black), StatusCode: 200}}
	f := newTestFetcher(t, store, transport)

	got, ok := f.Fetch(context.Background(), imageURL)
	require.True(t, ok)
	assert.Equal(t, payload, got)
	assert.Zero(t, transport.calls.Load(), "transport must not be called on a cache hit")
}

func TestFetchPopulatesCacheOnMiss(t *testing.T) {
	store := newTestStore(t)
	payload := pngBytes(t, color.Black)
	transport := &countingTransport{resp: &Response{Body: payload, StatusCode: 200}}
	f := newTestFetcher(t, store, transport)

	got, ok := f.Fetch(context.Background(), imageURL)
	require.True(t, ok)
	assert.Equal(t, payload, got)
	assert.Equal(t, int32(1), transport.calls.Load())

	cached, err := store.Get(context.Background(), imageURL)
	require.NoError(t, err)
	assert.Equal(t, payload, cached)

	_, ok = f.Fetch(context.Background(), imageURL)
	require.True(t, ok)
	assert.Equal(t, int32(1), transport.calls.Load(), "second fetch should be served from cache")
}

func TestFetchTransportFailureYieldsAbsent(t *testing.T) {
	transport := &countingTransport{err: errors.New("connection reset")}
	f := newTestFetcher(t, newTestStore(t), transport)

	got, ok := f.Fetch(context.Background(), imageURL)
	assert.False(t, ok)
	assert.Nil(t, got)

	_, err := f.Resolve(context.Background(), imageURL)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, OutcomeTransport, OutcomeOf(err))
}

func TestFetchMalformedURLSkipsTransport(t *testing.T) {
	transport := &countingTransport{resp: &Response{Body: pngBytes(t, color.White), StatusCode: 200}}
	f := newTestFetcher(t, newTestStore(t), transport)

	for _, raw := range []string{"not a url", "", "ftp://x/a.png", "https:///no-host.png", "/relative/a.png"} {
		_, ok := f.Fetch(context.Background(), raw)
		assert.False(t, ok, raw)

		_, err := f.Resolve(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
	assert.Zero(t, transport.calls.Load())
}

func TestFetchRejectsNon2xx(t *testing.T) {
	store := newTestStore(t)
	transport := &countingTransport{resp: &Response{Body: pngBytes(t, color.White), StatusCode: 404}}
	f := newTestFetcher(t, store, transport)

	_, err := f.Resolve(context.Background(), imageURL)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 404, fetchErr.StatusCode)
	assert.ErrorIs(t, err, ErrStatus)

	_, err = store.Get(context.Background(), imageURL)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestFetchDecodeFailureNotCached(t *testing.T) {
	store := newTestStore(t)
	transport := &countingTransport{resp: &Response{Body: []byte("<html>oops</html>"), StatusCode: 200}}
	f := newTestFetcher(t, store, transport)

	_, err := f.Resolve(context.Background(), imageURL)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = store.Get(context.Background(), imageURL)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestFetchRefetchesUndecodableCacheEntry(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(context.Background(), imageURL, []byte("truncated")))

	payload := pngBytes(t, color.Black)
	transport := &countingTransport{resp: &Response{Body: payload, StatusCode: 200}}
	f := newTestFetcher(t, store, transport)

	got, ok := f.Fetch(context.Background(), imageURL)
	require.True(t, ok)
	assert.Equal(t, payload, got)
	assert.Equal(t, int32(1), transport.calls.Load())

	cached, err := store.Get(context.Background(), imageURL)
	require.NoError(t, err)
	assert.Equal(t, payload, cached)
}

func TestFetchCoalescesConcurrentMisses(t *testing.T) {
	payload := pngBytes(t, color.White)
	release := make(chan struct{})
	var calls atomic.Int32
	transport := TransportFunc(func(ctx context.Context, rawURL string) (*Response, error) {
		calls.Add(1)
		<-release
		return &Response{Body: payload, StatusCode: 200}, nil
	})
	f := newTestFetcher(t, newTestStore(t), transport)

	const callers = 10
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.Fetch(context.Background(), imageURL)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "concurrent misses should share one transport call")
	for _, r := range results {
		assert.Equal(t, payload, r)
	}

	results[0][0] ^= 0xff
	for _, r := range results[1:] {
		assert.Equal(t, payload, r, "callers must not share a backing array")
	}
}

func TestFetchCallerCancellation(t *testing.T) {
	for _, coalesce := range []bool{true, false} {
		release := make(chan struct{})
		transport := TransportFunc(func(ctx context.Context, rawURL string) (*Response, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return nil, errors.New("released")
		})
		f := newTestFetcher(t, newTestStore(t), transport, WithCoalescing(coalesce))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := f.Resolve(ctx, imageURL)
		cancel()
		close(release)

		assert.ErrorIs(t, err, ErrCanceled, "coalesce=%v", coalesce)
	}
}

func TestFetchCanceledContextIsQuietMiss(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	transport := &countingTransport{err: context.Canceled}
	f, err := New(newTestStore(t), transport, WithLogger(logger), WithCoalescing(false))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Resolve(ctx, imageURL)
	assert.ErrorIs(t, err, ErrCanceled)

	for _, entry := range hook.AllEntries() {
		assert.NotEqual(t, "cache_get_failed", entry.Message)
	}
}

func TestFetchWriteFailureDoesNotFailFetch(t *testing.T) {
	store := &failingPutStore{Store: newTestStore(t)}
	observer := &recordingObserver{}
	payload := pngBytes(t, color.Black)
	transport := &countingTransport{resp: &Response{Body: payload, StatusCode: 200}}
	f := newTestFetcher(t, store, transport, WithObserver(observer))

	got, ok := f.Fetch(context.Background(), imageURL)
	require.True(t, ok)
	assert.Equal(t, payload, got)

	observer.mu.Lock()
	defer observer.mu.Unlock()
	require.Len(t, observer.writes, 1)
	assert.Error(t, observer.writes[0])
	assert.Equal(t, []string{OutcomeFetched}, observer.outcomes)
}

func TestFetchObserverOutcomes(t *testing.T) {
	observer := &recordingObserver{}
	transport := &countingTransport{resp: &Response{Body: pngBytes(t, color.White), StatusCode: 200}}
	f := newTestFetcher(t, newTestStore(t), transport, WithObserver(observer))

	f.Fetch(context.Background(), imageURL)
	f.Fetch(context.Background(), imageURL)
	f.Fetch(context.Background(), "not a url")

	observer.mu.Lock()
	defer observer.mu.Unlock()
	assert.Equal(t, []string{OutcomeFetched, OutcomeHit, OutcomeInvalidURL}, observer.outcomes)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, &countingTransport{})
	assert.Error(t, err)
	_, err = New(newTestStore(t), nil)
	assert.Error(t, err)
}

func TestDecoders(t *testing.T) {
	assert.NoError(t, ImageDecoder{}.Decode(pngBytes(t, color.White)))
	assert.Error(t, ImageDecoder{}.Decode(nil))
	assert.Error(t, ImageDecoder{}.Decode([]byte("GIF89")))
	assert.NoError(t, AnyBytes.Decode([]byte("x")))
	assert.Error(t, AnyBytes.Decode(nil))
}

func newTestStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.NewStore(t.TempDir(), cache.WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestFetcher(t *testing.T, store cache.Store, transport Transport, opts ...Option) *Fetcher {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	f, err := New(store, transport, opts...)
	require.NoError(t, err)
	return f
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type countingTransport struct {
	calls atomic.Int32
	resp  *Response
	err   error
}

func (c *countingTransport) FetchBytes(ctx context.Context, rawURL string) (*Response, error) {
	c.calls.Add(1)
	return c.resp, c.err
}

type failingPutStore struct {
	cache.Store
}

func (s *failingPutStore) Put(ctx context.Context, key string, blob []byte) error {
	return errors.New("disk full")
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	writes   []error
}

func (o *recordingObserver) ObserveFetch(outcome string, elapsed time.Duration) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveCacheWrite(err error) {
	o.mu.Lock()
	o.writes = append(o.writes, err)
	o.mu.Unlock()
}
