package email

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Message is one rendered newsletter ready for delivery.
type Message struct {
	CampaignID int64
	To         string
	Subject    string
	HTML       string
}

// Deliverer gets a rendered newsletter to its recipient.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, m *Message) error
}

// FileDeliverer writes newsletters as HTML files into an output directory.
// This is the review workflow: generated emails are inspected (or picked up
// by an external sender) rather than sent over SMTP directly.
type FileDeliverer struct {
	dir string
}

// NewFileDeliverer creates the output directory if needed.
func NewFileDeliverer(dir string) (*FileDeliverer, error) {
	if dir == "" {
		dir = "emails_output"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &FileDeliverer{dir: dir}, nil
}

func (f *FileDeliverer) Name() string { return "file" }

func (f *FileDeliverer) Deliver(_ context.Context, m *Message) error {
	name := fmt.Sprintf("campaign_%d_%s_%s.html",
		m.CampaignID, safeEmail(m.To), time.Now().Format("20060102_150405"))

	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte(m.HTML), 0o644); err != nil {
		return fmt.Errorf("write email %s: %w", path, err)
	}
	return nil
}

func safeEmail(email string) string {
	s := strings.ReplaceAll(email, "@", "_at_")
	return strings.ReplaceAll(s, ".", "_")
}
