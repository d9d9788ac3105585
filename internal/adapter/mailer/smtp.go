package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github-trending-digest/internal/common"
	"github-trending-digest/pkg/logger"
)

// ErrMailNotConfigured SMTP 地址或账号缺失，不会重试
var ErrMailNotConfigured = errors.New("smtp not configured")

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
}

// sendFunc 实际发信，测试里替换
type sendFunc func(cfg Config, from string, to []string, msg []byte) error

// SMTPMailer 实现了 port.Mailer 接口
type SMTPMailer struct {
	cfg        Config
	send       sendFunc
	nowFunc    func() time.Time
	location   *time.Location
	retryDelay time.Duration
}

func NewSMTPMailer(cfg Config, loc *time.Location) *SMTPMailer {
	if loc == nil {
		loc = time.Local
	}
	return &SMTPMailer{
		cfg:        cfg,
		send:       sendMail,
		nowFunc:    time.Now,
		location:   loc,
		retryDelay: 2 * time.Second,
	}
}

func (m *SMTPMailer) configured() bool {
	return m.cfg.Host != "" && m.cfg.User != "" && m.cfg.Password != ""
}

// SendToUser 发送个性化日报
func (m *SMTPMailer) SendToUser(ctx context.Context, html string, addrs []string) (bool, error) {
	return m.deliver(ctx, "🎯 你的 GitHub Trending 个性化日报 | "+m.today(), html, addrs)
}

// SendReport 发送默认日报
func (m *SMTPMailer) SendReport(ctx context.Context, html string, addrs []string) (bool, error) {
	return m.deliver(ctx, "🔥 GitHub Trending 日报 | "+m.today(), html, addrs)
}

func (m *SMTPMailer) today() string {
	return m.nowFunc().In(m.location).Format("2006-01-02")
}

// deliver 最多尝试 3 次；未配置时直接返回 ErrMailNotConfigured
func (m *SMTPMailer) deliver(ctx context.Context, subject, html string, addrs []string) (bool, error) {
	recipients := cleanAddrs(addrs)
	if len(recipients) == 0 {
		return false, nil
	}

	msg := buildMessage(m.cfg.User, recipients, subject, html)
	err := common.Do(ctx, func() error {
		if !m.configured() {
			return common.Permanent(ErrMailNotConfigured)
		}
		return m.send(m.cfg, m.cfg.User, recipients, msg)
	},
		common.WithMaxRetries(2),
		common.WithInitialDelay(m.retryDelay),
		common.WithOnRetry(func(attempt int, err error) {
			logger.Warn().Err(err).Int("attempt", attempt).Strs("to", recipients).Msg("📧 邮件发送失败，准备重试")
		}),
	)
	if err != nil {
		if errors.Is(err, ErrMailNotConfigured) {
			logger.Warn().Msg("📧 邮件未配置，跳过发送")
			return false, err
		}
		return false, common.WrapError(common.ErrCodeNotification, "邮件发送失败", err)
	}

	logger.Info().Strs("to", recipients).Msg("📧 邮件已发送")
	return true, nil
}

func cleanAddrs(addrs []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		key := strings.ToLower(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

func buildMessage(from string, to []string, subject, html string) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	sb.WriteString("Subject: " + mime.BEncoding.Encode("UTF-8", subject) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(html)
	return []byte(sb.String())
}

// sendMail 465 端口走 SMTP over SSL，其它端口走 STARTTLS
func sendMail(cfg Config, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	auth := smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)

	if cfg.Port != 465 {
		return smtp.SendMail(addr, auth, from, to, msg)
	}

	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 30 * time.Second}, "tcp", addr, &tls.Config{ServerName: cfg.Host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return err
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
