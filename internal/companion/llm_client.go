package companion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ChatMessage 对话模型消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 对话补全请求（OpenAI 兼容格式）
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// ChatResponse 对话补全响应
type ChatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// LLMClient 对话模型客户端（OpenAI 兼容 API）
type LLMClient struct {
	httpClient *resty.Client
	model      string
	logger     *zap.Logger
}

// NewLLMClient 创建对话模型客户端
func NewLLMClient(baseURL, apiKey, model string, timeout time.Duration, logger *zap.Logger) *LLMClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(apiKey)

	return &LLMClient{
		httpClient: client,
		model:      model,
		logger:     logger,
	}
}

// Complete 调用对话补全接口，返回模型回复文本
func (c *LLMClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	request := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.8,
		MaxTokens:   400,
	}

	var response ChatResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		SetError(&response).
		Post("/chat/completions")

	if err != nil {
		// 超时与不可达分开描述，方便护理端排查
		if isTimeout(err) {
			return "", fmt.Errorf("%w: request timed out: %v", ErrModelUnavailable, err)
		}
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	if resp.IsError() {
		msg := resp.Status()
		if response.Error != nil {
			msg = response.Error.Message
		}
		c.logger.Error("Model API returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("message", msg),
		)
		return "", fmt.Errorf("%w: %s", ErrModelUnavailable, msg)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices in response", ErrModelUnavailable)
	}

	return response.Choices[0].Message.Content, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
