package analyzer

import (
	"fmt"
	"strings"

	"github-trending-digest/internal/domain"
)

const systemPrompt = `你是 GitHub 项目分析助手。根据项目信息返回 JSON 数组。

对每个项目返回：
{"name":"owner/repo","category":"AI/LLM|前端框架|DevOps/工具|编程语言/库|其他","summary_zh":"一句话中文摘要(50字内)","detail_zh":"详细中文介绍(200-300字)","tech_tags":["相关技术标签1","标签2","标签3"]}

summary_zh 要求：一句话概括项目核心功能，50字以内。

detail_zh 要求（200-300字，用中文撰写）：
1. 项目概述：这个项目是什么，解决什么问题
2. 核心功能：列出3-5个主要功能亮点
3. 适用场景：哪些开发者/团队适合使用
4. 快速上手：简要说明如何开始使用
请基于README和项目描述进行分析，信息不足的部分可以合理推断，但不要编造具体的API或命令。

tech_tags 要求：列出该项目涉及的技术关键词（3-8个），包括编程语言、框架、工具、领域等。
例如：["Python", "FastAPI", "AI/LLM", "REST API"] 或 ["TypeScript", "React", "Three.js", "WebGL", "3D"]
只返回 JSON。`

const (
	maxTopics        = 10
	readmeInPrompt   = 800
	projectSeparator = "\n---\n"
)

// buildSystemPrompt 附带读者关注的方向，帮助模型挑选 tech_tags
func buildSystemPrompt(directions []domain.Direction) string {
	names := domain.EnabledNames(directions)
	if len(names) == 0 {
		return systemPrompt
	}
	return systemPrompt + "\n\n读者关注的技术方向：" + strings.Join(names, "、") + "。相关时请在 tech_tags 中使用这些方向的常见写法。"
}

func buildUserPrompt(batch []*domain.TrendingRepo) string {
	parts := make([]string, 0, len(batch))
	for _, r := range batch {
		parts = append(parts, buildProjectText(r))
	}
	return fmt.Sprintf("分析以下%d个项目:\n%s", len(batch), strings.Join(parts, projectSeparator))
}

func buildProjectText(r *domain.TrendingRepo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s | %s | ⭐%d(+%d) | %s", r.Name, r.Language, r.Stars, r.StarsDelta, r.Description)

	if len(r.Topics) > 0 {
		topics := r.Topics
		if len(topics) > maxTopics {
			topics = topics[:maxTopics]
		}
		sb.WriteString("\nTopics: " + strings.Join(topics, ","))
	}
	if r.ReadmeSnippet != "" {
		sb.WriteString("\nREADME: " + truncateRunes(r.ReadmeSnippet, readmeInPrompt))
	}
	return sb.String()
}
