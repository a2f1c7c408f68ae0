package fetcher

import "context"

// Response 是一次传输调用的结果：正文字节与状态码。
type Response struct {
	Body       []byte
	StatusCode int
}

// Transport 执行一次 GET。任意 HTTP 客户端都可以通过适配实现该接口。
type Transport interface {
	FetchBytes(ctx context.Context, rawURL string) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, rawURL string) (*Response, error)

// FetchBytes makes TransportFunc satisfy Transport.
func (f TransportFunc) FetchBytes(ctx context.Context, rawURL string) (*Response, error) {
	return f(ctx, rawURL)
}
