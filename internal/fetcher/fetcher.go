package fetcher

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/recipe-hub/recipe-hub/internal/cache"
	"github.com/recipe-hub/recipe-hub/internal/logging"
)

// Observer 接收 fetch 结果与写缓存状态，供 metrics 使用。
type Observer interface {
	ObserveFetch(outcome string, elapsed time.Duration)
	ObserveCacheWrite(err error)
}

// Option 调整 Fetcher 的可选依赖。
type Option func(*Fetcher)

// WithDecoder 替换默认的 ImageDecoder。
func WithDecoder(decoder Decoder) Option {
	return func(f *Fetcher) {
		if decoder != nil {
			f.decoder = decoder
		}
	}
}

// WithLogger 指定结构化日志输出。
func WithLogger(logger *logrus.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithObserver 注入观测者。
func WithObserver(observer Observer) Option {
	return func(f *Fetcher) { f.observer = observer }
}

// WithCoalescing 控制同一 key 的并发 miss 是否共享一次回源，默认开启。
func WithCoalescing(enabled bool) Option {
	return func(f *Fetcher) { f.coalesce = enabled }
}

// Fetcher orchestrates “缓存命中 → 回源 → 写缓存”，可被多个 goroutine 并发使用。
type Fetcher struct {
	store     cache.Store
	transport Transport
	decoder   Decoder
	logger    *logrus.Logger
	observer  Observer
	coalesce  bool

	group singleflight.Group
}

type fetchResult struct {
	blob []byte
	hit  bool
}

// New 构造 Fetcher。store 与 transport 必须显式注入，不提供隐式默认值。
func New(store cache.Store, transport Transport, opts ...Option) (*Fetcher, error) {
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	f := &Fetcher{
		store:     store,
		transport: transport,
		decoder:   ImageDecoder{},
		logger:    logrus.StandardLogger(),
		coalesce:  true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch 返回 rawURL 对应的字节；任何失败都折叠为 ok=false。
// 返回的切片归调用方所有，合并回源的多个调用方各自持有副本。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, bool) {
	blob, err := f.Resolve(ctx, rawURL)
	if err != nil {
		return nil, false
	}
	return blob, true
}

// Resolve 与 Fetch 流程相同，但保留失败类别（*FetchError）。
func (f *Fetcher) Resolve(ctx context.Context, rawURL string) ([]byte, error) {
	started := time.Now()
	result, err := f.resolve(ctx, rawURL)

	outcome := OutcomeOf(err)
	if err == nil && result.hit {
		outcome = OutcomeHit
	}
	f.logResult(rawURL, outcome, started, err)
	if f.observer != nil {
		f.observer.ObserveFetch(outcome, time.Since(started))
	}
	if err != nil {
		return nil, err
	}
	return result.blob, nil
}

func (f *Fetcher) resolve(ctx context.Context, rawURL string) (fetchResult, error) {
	if blob, ok := f.lookup(ctx, rawURL); ok {
		return fetchResult{blob: blob, hit: true}, nil
	}

	if err := validateURL(rawURL); err != nil {
		return fetchResult{}, newFetchError(ErrInvalidURL, rawURL, err)
	}

	if !f.coalesce {
		return f.fetchAndStore(ctx, rawURL)
	}

	// 共享的回源不受单个调用方取消影响，每个调用方只在自己的 ctx 上等待。
	shared := context.WithoutCancel(ctx)
	ch := f.group.DoChan(cache.EntryName(rawURL), func() (any, error) {
		if blob, ok := f.lookup(shared, rawURL); ok {
			return fetchResult{blob: blob, hit: true}, nil
		}
		return f.fetchAndStore(shared, rawURL)
	})

	select {
	case <-ctx.Done():
		return fetchResult{}, newFetchError(ErrCanceled, rawURL, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return fetchResult{}, res.Err
		}
		result, _ := res.Val.(fetchResult)
		if res.Shared {
			// 每个等待者拿到独立副本，互不影响。
			result.blob = bytes.Clone(result.blob)
		}
		return result, nil
	}
}

// lookup 读取缓存；无法解码的缓存内容会被删除并按 miss 处理。
func (f *Fetcher) lookup(ctx context.Context, rawURL string) ([]byte, bool) {
	blob, err := f.store.Get(ctx, rawURL)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return nil, false
	default:
		f.logger.WithError(err).
			WithFields(logrus.Fields{"action": "cache_get", "url": rawURL}).
			Warn("cache_get_failed")
		return nil, false
	}

	if err := f.decoder.Decode(blob); err != nil {
		f.logger.WithError(err).
			WithFields(logrus.Fields{"action": "cache_get", "url": rawURL}).
			Warn("cache_entry_undecodable")
		if rmErr := f.store.Remove(ctx, rawURL); rmErr != nil {
			f.logger.WithError(rmErr).
				WithFields(logrus.Fields{"action": "cache_remove", "url": rawURL}).
				Warn("cache_remove_failed")
		}
		return nil, false
	}
	return blob, true
}

func (f *Fetcher) fetchAndStore(ctx context.Context, rawURL string) (fetchResult, error) {
	resp, err := f.transport.FetchBytes(ctx, rawURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fetchResult{}, newFetchError(ErrCanceled, rawURL, ctxErr)
		}
		return fetchResult{}, newFetchError(ErrTransport, rawURL, err)
	}
	if resp == nil {
		return fetchResult{}, newFetchError(ErrTransport, rawURL, errors.New("nil response"))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fetchResult{}, &FetchError{Kind: ErrStatus, URL: rawURL, StatusCode: resp.StatusCode}
	}
	if err := f.decoder.Decode(resp.Body); err != nil {
		return fetchResult{}, newFetchError(ErrDecode, rawURL, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fetchResult{}, newFetchError(ErrCanceled, rawURL, ctxErr)
	}

	f.writeThrough(ctx, rawURL, resp.Body)
	return fetchResult{blob: resp.Body}, nil
}

// writeThrough 写缓存失败只记录日志与指标，不影响本次 fetch 结果。
func (f *Fetcher) writeThrough(ctx context.Context, rawURL string, blob []byte) {
	err := f.store.Put(context.WithoutCancel(ctx), rawURL, blob)
	if f.observer != nil {
		f.observer.ObserveCacheWrite(err)
	}
	if err != nil {
		f.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_put",
			"url":    rawURL,
			"key":    cache.EntryName(rawURL),
			"bytes":  len(blob),
		}).Warn("cache_write_failed")
	}
}

func (f *Fetcher) logResult(rawURL, outcome string, started time.Time, err error) {
	fields := logging.FetchFields(rawURL, cache.EntryName(rawURL), outcome)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	switch {
	case err != nil:
		fields["error"] = err.Error()
		f.logger.WithFields(fields).Warn("fetch_failed")
	case outcome == OutcomeHit:
		f.logger.WithFields(fields).Debug("fetch_complete")
	default:
		f.logger.WithFields(fields).Info("fetch_complete")
	}
}

// validateURL 要求绝对 http/https 地址且包含 Host。
func validateURL(raw string) error {
	if raw == "" {
		return errors.New("empty url")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("only http/https urls are supported")
	}
	if parsed.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
