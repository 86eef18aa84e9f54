package datapush

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"github.com/jordan-wright/email"
)

// Mailer 把导出的文件作为附件发出
type Mailer struct {
	Server   string // smtp地址, 缺省端口465
	Username string
	Password string
	To       []string
	Subject  string
}

// Build 组装邮件; 不存在的附件直接报错
func (m *Mailer) Build(body string, attachments ...string) (*email.Email, error) {
	if len(m.To) == 0 {
		return nil, fmt.Errorf("收件人为空")
	}

	e := email.NewEmail()
	e.From = fmt.Sprintf("Sales EDA <%s>", m.Username)
	e.To = m.To
	e.Subject = m.Subject
	e.Text = []byte(body)

	for _, path := range attachments {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("附件文件不存在: %w", err)
		}
		if _, err := e.AttachFile(path); err != nil {
			return nil, fmt.Errorf("附件添加失败: %w", err)
		}
	}
	return e, nil
}

// SendReport 通过SMTP(显式TLS)发送报告
func (m *Mailer) SendReport(body string, attachments ...string) error {
	e, err := m.Build(body, attachments...)
	if err != nil {
		return err
	}

	smtpAddr := m.Server
	if !strings.Contains(smtpAddr, ":") {
		smtpAddr += ":465"
	}
	host := strings.Split(smtpAddr, ":")[0]

	err = e.SendWithTLS(
		smtpAddr,
		smtp.PlainAuth("", m.Username, m.Password, host),
		&tls.Config{ServerName: host},
	)
	if err != nil {
		return fmt.Errorf("邮件发送失败 (Server: %s): %w", smtpAddr, err)
	}
	return nil
}
