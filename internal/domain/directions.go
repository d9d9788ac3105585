package domain

// DefaultDirections 全局默认技术方向，用户没有配置时使用
// 每次调用返回新的切片，调用方可以随意修改
func DefaultDirections() []Direction {
	return []Direction{
		{Name: "AI/LLM", Enabled: true, Tags: []string{"ai", "llm", "gpt", "rag", "agent", "machine-learning", "openai", "langchain"}},
		{Name: "Vue.js", Enabled: true, Tags: []string{"vue", "vuejs", "nuxt", "vite"}},
		{Name: "React", Enabled: true, Tags: []string{"react", "nextjs", "react-native"}},
		{Name: "FastAPI", Enabled: true, Tags: []string{"fastapi", "python", "pydantic"}},
		{Name: "Three.js", Enabled: true, Tags: []string{"threejs", "three.js", "webgl", "3d"}},
		{Name: "Cesium", Enabled: true, Tags: []string{"cesium", "gis", "webgis"}},
		{Name: "Docker", Enabled: true, Tags: []string{"docker", "kubernetes", "container", "devops"}},
		{Name: "n8n", Enabled: true, Tags: []string{"n8n", "workflow", "automation"}},
		{Name: "Dify", Enabled: true, Tags: []string{"dify", "llmops"}},
	}
}

// EnabledNames 启用方向的名字，用于 LLM 提示词
func EnabledNames(directions []Direction) []string {
	var names []string
	for _, d := range directions {
		if d.Enabled {
			names = append(names, d.Name)
		}
	}
	return names
}
