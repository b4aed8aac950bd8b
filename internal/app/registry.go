package app

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

type UploadStatus string

const (
	StatusIdle      UploadStatus = "idle"
	StatusUploading UploadStatus = "uploading"
	StatusSuccess   UploadStatus = "success"
	StatusError     UploadStatus = "error"
)

const (
	successWindow = 2 * time.Second
	errorWindow   = 3 * time.Second
)

// DocumentRegistry is the client-side view over the remote document store.
// The cache is only ever replaced wholesale from a successful list fetch;
// a failed refresh keeps the previous cache and raises an error banner
// instead of flickering the list to empty.
type DocumentRegistry struct {
	Gateway Gateway
	Logger  *Logger

	mu            sync.Mutex
	documents     []Document
	provider      string
	listError     string
	uploadStatus  UploadStatus
	statusMessage string
	statusExpiry  time.Time
	uploading     bool
	deleting      map[string]bool
	listGen       uint64
}

func NewDocumentRegistry(gw Gateway, logger *Logger) *DocumentRegistry {
	return &DocumentRegistry{
		Gateway:      gw,
		Logger:       logger,
		uploadStatus: StatusIdle,
		deleting:     make(map[string]bool),
	}
}

// Refresh fetches the canonical document list. The local generation counter
// discards responses overtaken by a newer refresh.
func (r *DocumentRegistry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.listGen++
	gen := r.listGen
	r.mu.Unlock()

	list, err := r.Gateway.ListDocuments(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.listGen {
		return nil
	}
	if err != nil {
		r.Logger.Error("document list failed", map[string]interface{}{"error": err.Error()})
		r.listError = "Failed to load documents"
		return err
	}
	r.documents = list.Documents
	r.provider = list.Provider
	r.listError = ""
	return nil
}

// Upload sends one local PDF through the ingest endpoint. A second upload
// while one is in flight is rejected; a successful upload re-fetches the
// document list since the ingest response only reports a chunk count.
func (r *DocumentRegistry) Upload(ctx context.Context, path string) (IngestResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return IngestResult{}, &ValidationError{Reason: "no file selected"}
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return IngestResult{}, &ValidationError{Reason: "only PDF files can be uploaded"}
	}

	r.mu.Lock()
	if r.uploading {
		r.mu.Unlock()
		return IngestResult{}, &ValidationError{Reason: "an upload is already in progress"}
	}
	r.uploading = true
	r.uploadStatus = StatusUploading
	r.statusMessage = "Uploading and processing document..."
	r.statusExpiry = time.Time{}
	r.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		r.finishUpload(StatusError, "Failed to upload document. Please try again.")
		return IngestResult{}, &ValidationError{Reason: "cannot open file: " + err.Error()}
	}
	defer file.Close()

	result, err := r.Gateway.Ingest(ctx, filepath.Base(path), file)
	if err != nil {
		r.Logger.Error("upload failed", map[string]interface{}{"file": filepath.Base(path), "error": err.Error()})
		r.finishUpload(StatusError, "Failed to upload document. Please try again.")
		return IngestResult{}, err
	}

	r.finishUpload(StatusSuccess, successMessage(result.Chunks))
	// The authoritative descriptor only exists server-side; re-fetch it.
	_ = r.Refresh(ctx)
	return result, nil
}

func successMessage(chunks int) string {
	return "Successfully uploaded! Created " + strconv.Itoa(chunks) + " chunks."
}

func (r *DocumentRegistry) finishUpload(status UploadStatus, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploading = false
	r.uploadStatus = status
	r.statusMessage = message
	switch status {
	case StatusSuccess:
		r.statusExpiry = time.Now().Add(successWindow)
	case StatusError:
		r.statusExpiry = time.Now().Add(errorWindow)
	}
}

// Delete removes one document, identified by filename plus upload timestamp
// so a re-uploaded file with the same name cannot be confused with the
// original. Deletes are single-flight per filename; other documents stay
// actionable while one is mid-delete.
func (r *DocumentRegistry) Delete(ctx context.Context, filename, uploadedAt string) error {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return &ValidationError{Reason: "no document selected"}
	}

	r.mu.Lock()
	if r.deleting[filename] {
		r.mu.Unlock()
		return &ValidationError{Reason: "delete already in progress for " + filename}
	}
	r.deleting[filename] = true
	r.mu.Unlock()

	err := r.Gateway.DeleteDocument(ctx, filename, uploadedAt)

	r.mu.Lock()
	delete(r.deleting, filename)
	if err != nil {
		r.Logger.Error("delete failed", map[string]interface{}{"file": filename, "error": err.Error()})
		r.uploadStatus = StatusError
		r.statusMessage = "Failed to delete document. Please try again."
		r.statusExpiry = time.Now().Add(errorWindow)
		r.mu.Unlock()
		return err
	}
	r.uploadStatus = StatusSuccess
	r.statusMessage = "Document \"" + filename + "\" deleted successfully."
	r.statusExpiry = time.Now().Add(successWindow)
	r.mu.Unlock()

	// The delete itself succeeded; a failed follow-up refresh is reported
	// through the list error banner, not as a delete failure.
	_ = r.Refresh(ctx)
	return nil
}

// Download streams a stored document into destDir and returns the local path.
func (r *DocumentRegistry) Download(ctx context.Context, filename, destDir string) (string, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "", &ValidationError{Reason: "no document selected"}
	}
	if destDir == "" {
		destDir = "."
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", &PersistenceError{Path: destDir, Op: "write", Err: err}
	}
	dest := filepath.Join(destDir, filepath.Base(filename))
	out, err := os.Create(dest)
	if err != nil {
		return "", &PersistenceError{Path: dest, Op: "write", Err: err}
	}
	defer out.Close()
	if err := r.Gateway.FetchDocument(ctx, filename, out); err != nil {
		_ = os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// MaybeResetStatus reverts a success/error status to idle once its display
// window has elapsed. The presentation layer drives this from its tick loop.
func (r *DocumentRegistry) MaybeResetStatus(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uploadStatus == StatusIdle || r.uploadStatus == StatusUploading {
		return false
	}
	if r.statusExpiry.IsZero() || now.Before(r.statusExpiry) {
		return false
	}
	r.uploadStatus = StatusIdle
	r.statusMessage = ""
	r.statusExpiry = time.Time{}
	return true
}

func (r *DocumentRegistry) Documents() []Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Document, len(r.documents))
	copy(out, r.documents)
	return out
}

func (r *DocumentRegistry) Provider() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.provider
}

func (r *DocumentRegistry) ListError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listError
}

func (r *DocumentRegistry) Status() (UploadStatus, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uploadStatus, r.statusMessage
}

func (r *DocumentRegistry) Deleting(filename string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleting[filename]
}
