// email_handler.go
package email

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// XLSXAttachmentHandler 保存目标邮件中的xlsx附件
type XLSXAttachmentHandler struct {
	TargetSubject string          // 目标邮件主题关键词
	DataDir       string          // 附件保存目录
	processedUIDs map[uint32]bool // 已处理邮件UID记录
	mu            sync.RWMutex    // 保护processedUIDs的读写锁
}

func NewXLSXAttachmentHandler(subject, dataDir string) *XLSXAttachmentHandler {
	return &XLSXAttachmentHandler{
		TargetSubject: subject,
		DataDir:       dataDir,
		processedUIDs: make(map[uint32]bool),
	}
}

func (h *XLSXAttachmentHandler) isProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

func (h *XLSXAttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Handle 把邮件中的第一个工作簿存档到DataDir并返回保存路径
// 已处理、主题不匹配或没有工作簿的邮件返回空路径
func (h *XLSXAttachmentHandler) Handle(email *Email) (string, error) {
	if email == nil || h.isProcessed(email.UID) {
		return "", nil
	}
	if !strings.Contains(email.Subject, h.TargetSubject) {
		return "", nil
	}
	wb := email.Workbook()
	if wb == nil {
		return "", nil
	}

	if err := os.MkdirAll(h.DataDir, 0755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}

	// 只取文件名, 防止附件名中带路径
	filePath := filepath.Join(h.DataDir, filepath.Base(wb.Filename))
	if err := os.WriteFile(filePath, wb.Content, 0644); err != nil {
		return "", fmt.Errorf("保存附件失败: %w", err)
	}

	h.markAsProcessed(email.UID)
	return filePath, nil
}
