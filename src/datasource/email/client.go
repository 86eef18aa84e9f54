// client.go
package email

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"SalesInsight/src/storage"
)

const (
	maxFetch        = 50
	defaultLookback = 7 * 24 * time.Hour // 销售导出按周发送
)

// MailService 提供带工作簿附件的未读邮件
type MailService interface {
	Connect() error
	Disconnect()
	FetchUnread() ([]*Email, error)
}

// Email 一封邮件中与分析相关的部分
type Email struct {
	UID       uint32
	Date      time.Time
	From      string
	Subject   string
	Workbooks []*Workbook // 只保留.xlsx附件
}

// Workbook 邮件中的一个xlsx附件
type Workbook struct {
	Filename string
	Content  []byte
}

// Workbook 返回第一个工作簿附件, 没有时为nil
func (e *Email) Workbook() *Workbook {
	if e == nil || len(e.Workbooks) == 0 {
		return nil
	}
	return e.Workbooks[0]
}

// EmailClient 通过IMAP读取收件箱
type EmailClient struct {
	Server   string
	Username string
	Password string
	Mailbox  string        // 默认INBOX
	Subject  string        // 非空时作为服务端SUBJECT检索条件
	Lookback time.Duration // 只检索这段时间内的邮件

	client *client.Client
	mu     sync.Mutex
}

func NewEmailClient(server, username, password string) *EmailClient {
	return &EmailClient{
		Server:   server,
		Username: username,
		Password: password,
		Mailbox:  "INBOX",
		Lookback: defaultLookback,
	}
}

// Connect 登录; 已有可用连接时直接复用
func (s *EmailClient) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		if _, err := s.client.Capability(); err == nil {
			return nil
		}
		s.client.Logout()
		s.client = nil
	}

	c, err := client.DialTLS(s.Server, nil)
	if err != nil {
		return fmt.Errorf("连接IMAP服务器 %s 失败: %w", s.Server, err)
	}
	if err := c.Login(s.Username, s.Password); err != nil {
		c.Logout()
		return fmt.Errorf("IMAP登录失败: %w", err)
	}
	s.client = c
	return nil
}

func (s *EmailClient) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Logout()
		s.client = nil
	}
}

// FetchUnread 按UID检索未读邮件, 返回其中带工作簿附件的
func (s *EmailClient) FetchUnread() ([]*Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil, fmt.Errorf("未连接到邮件服务器")
	}
	if _, err := s.client.Select(s.Mailbox, true); err != nil {
		return nil, fmt.Errorf("打开邮箱 %s 失败: %w", s.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if s.Lookback > 0 {
		criteria.Since = time.Now().Add(-s.Lookback)
	}
	if s.Subject != "" {
		criteria.Header.Add("Subject", s.Subject)
	}

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("检索邮件失败: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	// 只取最新的一批
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if len(uids) > maxFetch {
		uids = uids[len(uids)-maxFetch:]
	}
	return s.fetch(uids)
}

func (s *EmailClient) fetch(uids []uint32) ([]*Email, error) {
	set := new(imap.SeqSet)
	set.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 8)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(set, items, messages)
	}()

	var emails []*Email
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		e, err := ParseMessage(body)
		if err != nil || len(e.Workbooks) == 0 {
			continue
		}
		e.UID = msg.Uid
		emails = append(emails, e)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("读取邮件失败: %w", err)
	}
	return emails, nil
}

// ParseMessage 解析一封邮件, 只收集.xlsx附件
func ParseMessage(r io.Reader) (*Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("解析邮件失败: %w", err)
	}
	defer mr.Close()

	date, _ := mr.Header.Date()
	e := &Email{
		Date:    date,
		From:    decodeHeader(mr.Header.Get("From")),
		Subject: decodeHeader(mr.Header.Get("Subject")),
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取邮件分段失败: %w", err)
		}

		h, ok := p.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		name, err := h.Filename()
		if err != nil {
			continue
		}
		name = decodeHeader(name)
		if !isWorkbook(name) {
			continue
		}

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, p.Body); err != nil {
			return nil, fmt.Errorf("读取附件 %s 失败: %w", name, err)
		}
		e.Workbooks = append(e.Workbooks, &Workbook{Filename: name, Content: buf.Bytes()})
	}
	return e, nil
}

func isWorkbook(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}

// decodeHeader 解码RFC 2047编码的邮件头, 失败时原样返回
func decodeHeader(header string) string {
	dec := mime.WordDecoder{CharsetReader: charsetReader}
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "gbk", "gb2312", "gb18030":
		return transform.NewReader(input, simplifiedchinese.GBK.NewDecoder()), nil
	default:
		return input, nil
	}
}

// LatestWorkbookMail 返回主题包含keyword且带工作簿附件的最新一封邮件; 没有时返回nil
func LatestWorkbookMail(svc MailService, keyword string, logger *storage.Logger) (*Email, error) {
	if err := svc.Connect(); err != nil {
		return nil, err
	}
	defer svc.Disconnect()

	emails, err := svc.FetchUnread()
	if err != nil {
		return nil, err
	}

	latest := latestMatching(emails, keyword)
	if latest == nil {
		logger.Debug(fmt.Sprintf("%d 封未读邮件中没有销售数据", len(emails)))
		return nil, nil
	}
	logger.Info(fmt.Sprintf("收到销售数据邮件: %s (%s)", latest.Subject, latest.Date.Format(time.DateTime)))
	return latest, nil
}

func latestMatching(emails []*Email, keyword string) *Email {
	var latest *Email
	for _, e := range emails {
		if e.Workbook() == nil || !strings.Contains(e.Subject, keyword) {
			continue
		}
		if latest == nil || e.Date.After(latest.Date) {
			latest = e
		}
	}
	return latest
}
