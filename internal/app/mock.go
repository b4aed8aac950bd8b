package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// MockGateway simulates the remote service for --mock runs and tests. It
// keeps an in-memory document store and answers queries with canned text.
type MockGateway struct {
	mu        sync.Mutex
	documents []Document
	Calls     int
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) Ingest(ctx context.Context, filename string, file io.Reader) (IngestResult, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return IngestResult{}, &RemoteError{Message: err.Error()}
	}

	now := time.Now()
	name := filename
	ext := ""
	if i := strings.LastIndex(filename, "."); i >= 0 {
		name = filename[:i]
		ext = filename[i+1:]
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.documents = append([]Document{{
		Filename:            filename,
		Name:                name,
		Extension:           ext,
		Size:                int64(len(data)),
		SizeFormatted:       fmt.Sprintf("%.2f KB", float64(len(data))/1024),
		UploadedOn:          now.Format(time.RFC3339),
		UploadedOnFormatted: now.Format("Jan 02, 2006 03:04 PM"),
	}}, m.documents...)

	chunks := len(data)/1000 + 1
	return IngestResult{
		Message:    "Document ingested and added to vector store successfully.",
		Chunks:     chunks,
		UploadedAt: now.Format(time.RFC3339),
	}, nil
}

func (m *MockGateway) Query(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if len(m.documents) == 0 {
		return "", &RemoteError{Status: 400, Message: "No documents ingested yet."}
	}
	return fmt.Sprintf("Mock answer based on %d document(s): your question was %q.", len(m.documents), text), nil
}

func (m *MockGateway) ListDocuments(ctx context.Context) (DocumentList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	docs := make([]Document, len(m.documents))
	copy(docs, m.documents)
	return DocumentList{Documents: docs, Provider: "mock", Count: len(docs)}, nil
}

func (m *MockGateway) DeleteDocument(ctx context.Context, filename, uploadedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	for i, d := range m.documents {
		if d.Filename == filename && (uploadedAt == "" || d.UploadedOn == uploadedAt) {
			m.documents = append(m.documents[:i], m.documents[i+1:]...)
			return nil
		}
	}
	return &RemoteError{Status: 404, Message: "Document not found"}
}

func (m *MockGateway) FetchDocument(ctx context.Context, filename string, w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	for _, d := range m.documents {
		if d.Filename == filename {
			_, err := io.WriteString(w, "%PDF-1.4 mock document\n")
			return err
		}
	}
	return &RemoteError{Status: 404, Message: "Document not found"}
}
