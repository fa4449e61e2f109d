package service

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/pkg/gradingclient"
)

func docxFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"word/document.xml":   `<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"/>`,
	}
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestSubmissionFilesAcceptsHomework(t *testing.T) {
	checker := NewSubmissionFiles(1)
	err := checker.Check([]gradingclient.File{
		{Name: "plan.txt", Data: []byte("I plan to become a data engineer.")},
		{Name: "notes.MD", Data: []byte("# Career plan\n\n- study\n")},
		{Name: "essay.markdown", Data: []byte("Some *markdown* text")},
		{Name: "report.docx", Data: docxFixture(t)},
	})
	require.NoError(t, err)
}

func TestSubmissionFilesRejects(t *testing.T) {
	checker := NewSubmissionFiles(1)
	cases := []struct {
		name string
		file gradingclient.File
		err  error
	}{
		{"pdf extension", gradingclient.File{Name: "report.pdf", Data: []byte("%PDF-1.4")}, ErrFileTypeNotAllowed},
		{"empty file", gradingclient.File{Name: "empty.txt"}, ErrFileTypeNotAllowed},
		{"text renamed to docx", gradingclient.File{Name: "fake.docx", Data: []byte("just text")}, ErrFileTypeNotAllowed},
		{"binary renamed to txt", gradingclient.File{Name: "image.txt", Data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")}, ErrFileTypeNotAllowed},
		{"too large", gradingclient.File{Name: "big.txt", Data: bytes.Repeat([]byte("a"), 1024*1024+1)}, ErrFileTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, checker.Check([]gradingclient.File{tc.file}), tc.err)
		})
	}
}

func TestSubmissionFilesRequiresSelection(t *testing.T) {
	checker := NewSubmissionFiles(0)
	require.ErrorIs(t, checker.Check(nil), ErrNoFiles)
	_, err := checker.FromMultipart(nil)
	require.ErrorIs(t, err, ErrNoFiles)
}
