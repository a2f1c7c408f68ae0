// Package recipe fetches the recipe list from the remote JSON endpoint. It is a
// single unconditional GET; failures surface as typed errors so callers can
// tell a bad endpoint from a bad status, an empty body or malformed JSON.
package recipe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultEndpoint 是菜谱列表的默认地址。
const DefaultEndpoint = "https://d3jbb8n5wk0qxi.cloudfront.net/recipes.json"

// Recipe 对应接口返回的单条菜谱，字段采用 snake_case。
type Recipe struct {
	UUID          string  `json:"uuid"`
	Cuisine       string  `json:"cuisine"`
	Name          string  `json:"name"`
	PhotoURLLarge *string `json:"photo_url_large,omitempty"`
	PhotoURLSmall *string `json:"photo_url_small,omitempty"`
	SourceURL     *string `json:"source_url,omitempty"`
	YoutubeURL    *string `json:"youtube_url,omitempty"`
}

// UnmarshalJSON 要求 uuid、cuisine、name 三个字段存在且不为 null。
func (r *Recipe) UnmarshalJSON(data []byte) error {
	type plain Recipe
	var raw struct {
		plain
		UUID    *string `json:"uuid"`
		Cuisine *string `json:"cuisine"`
		Name    *string `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.UUID == nil:
		return errors.New(`recipe missing required field "uuid"`)
	case raw.Cuisine == nil:
		return errors.New(`recipe missing required field "cuisine"`)
	case raw.Name == nil:
		return errors.New(`recipe missing required field "name"`)
	}
	*r = Recipe(raw.plain)
	r.UUID, r.Cuisine, r.Name = *raw.UUID, *raw.Cuisine, *raw.Name
	return nil
}

// ID 返回菜谱的唯一标识。
func (r Recipe) ID() string {
	return r.UUID
}

// Response 是接口的顶层结构。
type Response struct {
	Recipes []Recipe `json:"recipes"`
}

// Service 获取菜谱列表。
type Service interface {
	GetRecipes(ctx context.Context) ([]Recipe, error)
}

// Errors returned by Client.GetRecipes.
var (
	ErrInvalidURL  = errors.New("the url provided is invalid")
	ErrInvalidData = errors.New("server returned invalid data")
)

// ResponseError 表示上游返回了非 200 状态。
type ResponseError struct {
	StatusCode int
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("server returned an invalid response: %d", e.StatusCode)
}

// DecodeError 包装 JSON 解析失败的原始错误。
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response from server: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Kind 返回错误类别，供日志和 HTTP 响应使用。
func Kind(err error) string {
	var respErr *ResponseError
	var decodeErr *DecodeError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.As(err, &respErr):
		return "invalid_response"
	case errors.Is(err, ErrInvalidData):
		return "invalid_data"
	case errors.As(err, &decodeErr):
		return "decode_failed"
	default:
		return "network_error"
	}
}

// Client 通过 HTTP 实现 Service。
type Client struct {
	endpoint string
	client   *http.Client
}

var _ Service = (*Client)(nil)

// NewClient 构造菜谱客户端；endpoint 为空时使用 DefaultEndpoint。
func NewClient(endpoint string, client *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{endpoint: endpoint, client: client}
}

// GetRecipes 请求 endpoint 并解析菜谱列表。
func (c *Client) GetRecipes(ctx context.Context) ([]Recipe, error) {
	parsed, err := url.Parse(c.endpoint)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, ErrInvalidURL
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ResponseError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read recipes body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrInvalidData
	}

	var payload Response
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if payload.Recipes == nil {
		return nil, &DecodeError{Err: errors.New(`missing "recipes" field`)}
	}
	return payload.Recipes, nil
}
