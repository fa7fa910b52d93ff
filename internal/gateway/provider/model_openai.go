package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kabupilot/internal/logger"
	"kabupilot/internal/pkg/jsonutil"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// OpenAIChatClient 兼容 OpenAI / xAI Grok 等 /v1/chat/completions 接口。
type OpenAIChatClient struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxRetries   int
	ExtraHeaders map[string]string

	http *resty.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}


func (c *OpenAIChatClient) endpoint() string {
	url := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	// 配置里可能已经写了完整路径
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func (c *OpenAIChatClient) client() *resty.Client {
	if c.http != nil {
		return c.http
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := c.MaxRetries
	if retries == 0 {
		retries = 2
	}
	cl := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(800 * time.Millisecond).
		SetRetryMaxWaitTime(8 * time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return false
			}
			switch r.StatusCode() {
			case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
				http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return true
			}
			return false
		}).
		SetRetryAfter(func(_ *resty.Client, r *resty.Response) (time.Duration, error) {
			if r == nil {
				return 0, nil
			}
			if secs, err := strconv.Atoi(r.Header().Get("Retry-After")); err == nil {
				return time.Duration(secs) * time.Second, nil
			}
			return 0, nil
		})
	if c.APIKey != "" {
		cl.SetAuthToken(c.APIKey)
	}
	for k, v := range c.ExtraHeaders {
		cl.SetHeader(k, v)
	}
	c.http = cl
	return cl
}

func (c *OpenAIChatClient) Complete(ctx context.Context, payload ChatPayload) (string, error) {
	msgs := make([]chatMessage, 0, 2)
	if payload.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: payload.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: payload.User})
	body := chatRequest{Model: c.Model, Messages: msgs, Temperature: 0.3, MaxTokens: payload.MaxTokens}
	if payload.ExpectJSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	url := c.endpoint()
	if logger.Level() == "debug" {
		raw, _ := json.Marshal(body)
		logger.Debugf("[AI] 请求: POST %s, key=%s, body=%s", url, maskKey(c.APIKey), string(raw))
	}
	resp, err := c.client().R().
		SetContext(ctx).
		SetBody(body).
		Post(url)
	if err != nil {
		return "", err
	}
	// 兼容服务端不带 JSON Content-Type 的情况，直接解析响应体
	raw := resp.Body()
	if resp.IsError() {
		msg := strings.TrimSpace(gjson.GetBytes(raw, "error.message").String())
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("status=%d: %s", resp.StatusCode(), msg)
	}
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return "", fmt.Errorf("empty choices")
	}
	return content.String(), nil
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// OpenAIModelProvider 把 OpenAIChatClient 包装成 ModelProvider，并记录 LLM 日志。
type OpenAIModelProvider struct {
	id      string
	enabled bool
	client  interface {
		Complete(ctx context.Context, payload ChatPayload) (string, error)
	}
}

func NewOpenAIModelProvider(id string, enabled bool, client interface {
	Complete(ctx context.Context, payload ChatPayload) (string, error)
}) *OpenAIModelProvider {
	return &OpenAIModelProvider{id: id, enabled: enabled, client: client}
}

func (p *OpenAIModelProvider) ID() string    { return p.id }
func (p *OpenAIModelProvider) Enabled() bool { return p.enabled }

func (p *OpenAIModelProvider) Call(ctx context.Context, payload ChatPayload) (string, error) {
	logger.LogLLMRequest(payload.Purpose, p.id, payload.System, payload.User, "")
	raw, err := p.client.Complete(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.id, err)
	}
	logged := raw
	if payload.ExpectJSON {
		logged = jsonutil.Pretty(raw)
	}
	logger.LogLLMResponse(payload.Purpose, p.id, logged)
	return raw, nil
}
