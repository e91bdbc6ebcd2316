// Package upload stores accepted chat attachments.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nesturechat/internal/models"
)

// Noop acknowledges attachments without transmitting them anywhere.
type Noop struct{}

func (Noop) Upload(_ context.Context, _ string, _ models.Attachment, body io.Reader) (string, error) {
	if body != nil {
		_, _ = io.Copy(io.Discard, body)
	}
	return "", nil
}

// Disk writes attachments under baseDir/<owner>/.
type Disk struct {
	baseDir string
	maxSize int64
}

// NewDisk creates a disk uploader. maxSize bounds the bytes copied per file.
func NewDisk(baseDir string, maxSize int64) *Disk {
	return &Disk{baseDir: baseDir, maxSize: maxSize}
}

func (d *Disk) Upload(ctx context.Context, owner string, att models.Attachment, body io.Reader) (string, error) {
	if body == nil {
		return "", errors.New("empty attachment body")
	}
	if owner == "" || strings.ContainsAny(owner, `/\`) || owner == "." || owner == ".." {
		return "", fmt.Errorf("invalid owner %q", owner)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	filename := filepath.Base(att.Name)
	if filename == "." || filename == string(filepath.Separator) || filename == "" {
		filename = "attachment"
	}
	destDir, destPath := d.uniquePath(owner, filename)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	var reader io.Reader = body
	if d.maxSize > 0 {
		reader = io.LimitReader(body, d.maxSize+1)
	}
	n, err := io.Copy(f, reader)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && d.maxSize > 0 && n > d.maxSize {
		err = fmt.Errorf("attachment exceeds %d bytes", d.maxSize)
	}
	if err != nil {
		_ = os.Remove(destPath)
		return "", fmt.Errorf("save file: %w", err)
	}
	return destPath, nil
}

func (d *Disk) filePath(owner, filename string) (string, string) {
	destDir := filepath.Join(d.baseDir, owner)
	return destDir, filepath.Join(destDir, filename)
}

func (d *Disk) uniquePath(owner, filename string) (string, string) {
	destDir, destPath := d.filePath(owner, filename)
	if _, err := os.Stat(destPath); os.IsNotExist(err) {
		return destDir, destPath
	}
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	for idx := 1; idx <= 1000; idx++ {
		_, path := d.filePath(owner, fmt.Sprintf("%s (%d)%s", base, idx, ext))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return destDir, path
		}
	}
	return destDir, filepath.Join(destDir, fmt.Sprintf("%s-%d%s", base, time.Now().UnixNano(), ext))
}
