// Package transport provides the HTTP implementation of fetcher.Transport and
// the shared, tuned http.Client used for every upstream request.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/recipe-hub/recipe-hub/internal/config"
	"github.com/recipe-hub/recipe-hub/internal/fetcher"
)

// DefaultMaxBodyBytes 限制单次响应读取的最大字节数。
const DefaultMaxBodyBytes int64 = 10 << 20

// ErrBodyTooLarge 表示上游响应超过 MaxBodyBytes。
var ErrBodyTooLarge = errors.New("response body too large")

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewClient 返回共享 http.Client，用于图片与菜谱列表的上游请求。
func NewClient(cfg *config.Config) *http.Client {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		timeout = cfg.Global.UpstreamTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}

// HTTP 通过 http.Client 实现 fetcher.Transport。不校验状态码，由 fetcher 决定。
type HTTP struct {
	Client       *http.Client
	MaxBodyBytes int64
}

var _ fetcher.Transport = (*HTTP)(nil)

// NewHTTP 使用给定 client 构造传输层；maxBody <= 0 时使用 DefaultMaxBodyBytes。
func NewHTTP(client *http.Client, maxBody int64) *HTTP {
	if client == nil {
		client = NewClient(nil)
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &HTTP{Client: client, MaxBodyBytes: maxBody}
}

// FetchBytes implements fetcher.Transport.
func (t *HTTP) FetchBytes(ctx context.Context, rawURL string) (*fetcher.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > t.MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return &fetcher.Response{Body: body, StatusCode: resp.StatusCode}, nil
}
