package openai

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github-trending-digest/internal/common"
)

const (
	DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DefaultModel   = "qwen-plus"
)

// Provider 实现了 port.LLMProvider 接口，兼容任何 OpenAI 协议的服务 (通义千问、DeepSeek 等)
type Provider struct {
	client      *openai.Client
	model       string
	temperature float32
}

func NewProvider(apiKey, baseURL, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, common.NewError(common.ErrCodeConfig, "缺少 LLM API Key")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")

	return &Provider{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: 0.3,
	}, nil
}

func (p *Provider) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: p.temperature,
	})
	if err != nil {
		return "", common.WrapError(common.ErrCodeAIProcessing, "LLM 调用失败", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", common.NewError(common.ErrCodeAIProcessing, "AI 返回内容为空")
	}
	return resp.Choices[0].Message.Content, nil
}
