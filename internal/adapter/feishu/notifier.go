package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
	"github-trending-digest/pkg/logger"
)

// Notifier 实现了 port.RunNotifier 接口，运行结束后推送一张摘要卡片
type Notifier struct {
	webhookURL string
	reportURL  string
	client     *http.Client
	retryDelay time.Duration
}

// NewNotifier reportURL 为空时卡片不带“查看日报”按钮
func NewNotifier(webhook, reportURL string) *Notifier {
	if webhook == "" {
		logger.Warn().Msg("⚠️ 飞书 Webhook 为空，推送功能将无法工作！")
	}
	return &Notifier{
		webhookURL: webhook,
		reportURL:  reportURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		retryDelay: 500 * time.Millisecond,
	}
}

var headerTemplates = map[domain.RunStatus]string{
	domain.RunSuccess:    "green",
	domain.RunNoData:     "grey",
	domain.RunAllDeduped: "grey",
	domain.RunError:      "red",
}

var statusTitles = map[domain.RunStatus]string{
	domain.RunSuccess:    "✅ GitHub Trending 日报已生成",
	domain.RunNoData:     "📭 今日没有抓到趋势项目",
	domain.RunAllDeduped: "♻️ 今日项目均已推送过",
	domain.RunError:      "❌ 日报流水线执行失败",
}

// NotifyRun 发送飞书卡片消息 (Schema 2.0)
func (n *Notifier) NotifyRun(ctx context.Context, result domain.RunResult) error {
	if n.webhookURL == "" {
		return common.NewError(common.ErrCodeNotification, "Webhook URL 为空")
	}

	body, err := json.Marshal(n.buildCard(result))
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "构造飞书卡片失败", err)
	}

	err = common.Do(ctx, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if reqErr != nil {
			return common.Permanent(reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, postErr := n.client.Do(req)
		if postErr != nil {
			return postErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("飞书 API 报错: 状态码 %d", resp.StatusCode)
		}
		return nil
	},
		common.WithMaxRetries(3),
		common.WithInitialDelay(n.retryDelay),
	)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "发送飞书通知失败", err)
	}
	return nil
}

func (n *Notifier) buildCard(result domain.RunResult) map[string]interface{} {
	title, ok := statusTitles[result.Status]
	if !ok {
		title = "GitHub Trending 日报"
	}
	color, ok := headerTemplates[result.Status]
	if !ok {
		color = "blue"
	}

	var md string
	switch result.Status {
	case domain.RunSuccess:
		md = fmt.Sprintf(`**📡 抓取:** %d 个  |  **♻️ 去重跳过:** %d 个  |  **📝 推送:** %d 个
**📧 默认日报邮件:** %s  |  **👥 个性化用户:** %d 位`,
			result.Total, result.Skipped, result.Pushed, yesNo(result.EmailSent), result.UsersNotified)
	default:
		md = result.Message
	}
	if !result.FinishedAt.IsZero() && !result.StartedAt.IsZero() {
		md += fmt.Sprintf("\n**⏱ 耗时:** %s", result.FinishedAt.Sub(result.StartedAt).Round(time.Second))
	}

	elements := []map[string]interface{}{
		{
			"tag":       "markdown",
			"content":   md,
			"text_size": "normal",
		},
	}
	if n.reportURL != "" && result.Status == domain.RunSuccess {
		elements = append(elements, map[string]interface{}{
			"tag": "button",
			"text": map[string]interface{}{
				"tag":     "plain_text",
				"content": "🔗 查看日报",
			},
			"type": "primary",
			"behaviors": []map[string]interface{}{
				{
					"type":        "open_url",
					"default_url": n.reportURL,
				},
			},
		})
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"schema": "2.0",
			"config": map[string]interface{}{
				"update_multi": true,
			},
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": title,
				},
				"template": color,
			},
			"body": map[string]interface{}{
				"direction": "vertical",
				"elements":  elements,
			},
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "已发送"
	}
	return "未发送"
}
