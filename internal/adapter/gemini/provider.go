package gemini

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github-trending-digest/internal/common"
)

const defaultModel = "gemini-2.5-flash-lite"

// Provider 实现了 port.LLMProvider 接口
type Provider struct {
	client      *genai.Client
	modelName   string
	temperature float32
}

func NewProvider(ctx context.Context, apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, common.NewError(common.ErrCodeConfig, "缺少 Gemini API Key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "初始化 Gemini 客户端失败", err)
	}
	if model == "" {
		model = defaultModel
	}
	return &Provider{client: client, modelName: model, temperature: 0.3}, nil
}

// Complete 每次调用新建 GenerativeModel，SystemInstruction 不会在并发调用间串掉
func (p *Provider) Complete(ctx context.Context, system, user string) (string, error) {
	model := p.client.GenerativeModel(p.modelName)
	// 强制要求返回 JSON，降低解析错误的概率
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(p.temperature)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", common.WrapError(common.ErrCodeAIProcessing, "Gemini 调用失败", err)
	}
	return responseText(resp)
}

func (p *Provider) Close() error {
	return p.client.Close()
}

// responseText 拼接第一个候选结果里的全部文本片段
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", common.NewError(common.ErrCodeAIProcessing, "AI 返回内容为空")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", common.NewError(common.ErrCodeAIProcessing, "AI 返回格式错误")
	}
	return sb.String(), nil
}
