package service

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/gema-grader/pkg/gradingclient"
)

var (
	// ErrNoFiles indicates an empty file selection.
	ErrNoFiles = errors.New("select at least one homework file (.docx/.md/.markdown/.txt)")
	// ErrFileTooLarge indicates a file above the per-file limit.
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrFileTypeNotAllowed indicates an extension or content type the grading service cannot read.
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
)

const docxMime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var allowedExtensions = map[string]struct{}{
	".docx":     {},
	".md":       {},
	".markdown": {},
	".txt":      {},
}

// SubmissionFiles reads and checks homework files before they are sent for grading.
type SubmissionFiles struct {
	maxSize int64
}

// NewSubmissionFiles builds a checker with a per-file limit in megabytes.
func NewSubmissionFiles(maxSizeMB int) *SubmissionFiles {
	if maxSizeMB <= 0 {
		maxSizeMB = 20
	}
	return &SubmissionFiles{maxSize: int64(maxSizeMB) * 1024 * 1024}
}

// FromMultipart reads uploaded form files.
func (s *SubmissionFiles) FromMultipart(headers []*multipart.FileHeader) ([]gradingclient.File, error) {
	if len(headers) == 0 {
		return nil, ErrNoFiles
	}
	files := make([]gradingclient.File, 0, len(headers))
	for _, header := range headers {
		if header.Size > s.maxSize {
			return nil, fmt.Errorf("%s: %w", header.Filename, ErrFileTooLarge)
		}
		handle, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(io.LimitReader(handle, s.maxSize+1))
		_ = handle.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, gradingclient.File{Name: header.Filename, Data: data})
	}
	return files, s.Check(files)
}

// Check validates names, sizes and detected content of already-read files.
func (s *SubmissionFiles) Check(files []gradingclient.File) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	for _, file := range files {
		if err := s.checkOne(file); err != nil {
			return fmt.Errorf("%s: %w", file.Name, err)
		}
	}
	return nil
}

func (s *SubmissionFiles) checkOne(file gradingclient.File) error {
	if int64(len(file.Data)) > s.maxSize {
		return ErrFileTooLarge
	}
	ext := strings.ToLower(filepath.Ext(file.Name))
	if _, ok := allowedExtensions[ext]; !ok {
		return ErrFileTypeNotAllowed
	}
	if len(file.Data) == 0 {
		return ErrFileTypeNotAllowed
	}

	detected := mimetype.Detect(file.Data)
	if ext == ".docx" {
		if !isZipFamily(detected) {
			return ErrFileTypeNotAllowed
		}
		return s.scanArchive(file.Data)
	}
	if !detected.Is("text/plain") && !isTextFamily(detected) {
		return ErrFileTypeNotAllowed
	}
	return nil
}

func isZipFamily(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("application/zip") || m.Is(docxMime) {
			return true
		}
	}
	return false
}

func isTextFamily(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// scanArchive rejects archives whose uncompressed size is out of proportion.
func (s *SubmissionFiles) scanArchive(payload []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return ErrFileTypeNotAllowed
	}
	var total uint64
	for _, f := range reader.File {
		total += f.UncompressedSize64
		if total > uint64(s.maxSize*20) {
			return fmt.Errorf("archive uncompressed size too large: %w", ErrFileTooLarge)
		}
	}
	return nil
}
