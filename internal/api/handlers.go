package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
	"github-trending-digest/pkg/logger"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.runner.Status(c.Request.Context()))
}

func (s *Server) trigger(c *gin.Context) {
	status := s.runner.TryStart(c.Request.Context(), GetUserID(c), GetRole(c) == domain.RoleAdmin)
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (s *Server) getTechStack(c *gin.Context) {
	dirs, err := s.directions.GetTechStack(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dirs)
}

func (s *Server) putTechStack(c *gin.Context) {
	dirs, err := bindDirections(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.directions.SetTechStack(c.Request.Context(), dirs); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getMyTechStack(c *gin.Context) {
	dirs, err := s.users.GetUserDirections(c.Request.Context(), GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if len(dirs) == 0 {
		dirs, err = s.directions.GetTechStack(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, dirs)
}

func (s *Server) putMyTechStack(c *gin.Context) {
	dirs, err := bindDirections(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.users.SetUserDirections(c.Request.Context(), GetUserID(c), dirs); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listReports(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(c, common.NewError(common.ErrCodeInvalidInput, "limit 必须是正整数"))
			return
		}
		limit = n
	}

	reports, err := s.reports.ListReports(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if reports == nil {
		reports = []domain.DailyReport{}
	}
	c.JSON(http.StatusOK, reports)
}

// reportDetail 详情里附带解析后的 projects
type reportDetail struct {
	domain.DailyReport
	Projects json.RawMessage `json:"projects,omitempty"`
}

func (s *Server) getReport(c *gin.Context) {
	report, ok := s.loadReport(c)
	if !ok {
		return
	}
	detail := reportDetail{DailyReport: *report}
	if report.ReportJSON != "" && json.Valid([]byte(report.ReportJSON)) {
		detail.Projects = json.RawMessage(report.ReportJSON)
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) getReportHTML(c *gin.Context) {
	report, ok := s.loadReport(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(report.ReportHTML))
}

func (s *Server) latestHTML(c *gin.Context) {
	report, err := s.reports.LatestReport(c.Request.Context())
	if err != nil {
		if common.CodeOf(err) == common.ErrCodeNotFound {
			c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte("<h1>暂无报告</h1>"))
			return
		}
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(report.ReportHTML))
}

func (s *Server) loadReport(c *gin.Context) (*domain.DailyReport, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, common.NewError(common.ErrCodeInvalidInput, "无效的报告 ID"))
		return nil, false
	}
	report, err := s.reports.GetReport(c.Request.Context(), uint(id))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return report, true
}

// bindDirections 解析并规范化方向列表：名称必填，标签小写去空
func bindDirections(c *gin.Context) ([]domain.Direction, error) {
	var dirs []domain.Direction
	if err := c.ShouldBindJSON(&dirs); err != nil {
		return nil, common.WrapError(common.ErrCodeInvalidInput, "请求体必须是方向数组", err)
	}

	out := make([]domain.Direction, 0, len(dirs))
	for _, d := range dirs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, common.NewError(common.ErrCodeInvalidInput, "方向名称不能为空")
		}
		tags := make([]string, 0, len(d.Tags))
		for _, t := range d.Tags {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				tags = append(tags, t)
			}
		}
		out = append(out, domain.Direction{Name: name, Enabled: d.Enabled, Tags: tags})
	}
	return out, nil
}

// writeError 按 AppError 错误码映射 HTTP 状态
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch common.CodeOf(err) {
	case common.ErrCodeNotFound:
		status = http.StatusNotFound
	case common.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	}

	msg := err.Error()
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("❌ 请求处理失败")
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
