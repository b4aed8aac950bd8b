package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Gateway is the typed surface of the remote document/Q&A service. The real
// client, the scripted mock, and test stubs all implement it.
type Gateway interface {
	Ingest(ctx context.Context, filename string, file io.Reader) (IngestResult, error)
	Query(ctx context.Context, text string) (string, error)
	ListDocuments(ctx context.Context) (DocumentList, error)
	DeleteDocument(ctx context.Context, filename, uploadedAt string) error
	FetchDocument(ctx context.Context, filename string, w io.Writer) error
}

// Document is the descriptor the server reports for one stored file. The
// client never edits a descriptor; it always re-fetches the canonical list
// after a write.
type Document struct {
	Filename            string `json:"filename"`
	Name                string `json:"name"`
	Extension           string `json:"extension"`
	Size                int64  `json:"size"`
	SizeFormatted       string `json:"sizeFormatted"`
	UploadedOn          string `json:"uploadedOn"`
	UploadedOnFormatted string `json:"uploadedOnFormatted"`
}

type DocumentList struct {
	Documents []Document `json:"documents"`
	Provider  string     `json:"provider"`
	Count     int        `json:"count"`
}

type IngestResult struct {
	Message    string `json:"message"`
	Chunks     int    `json:"chunks"`
	UploadedAt string `json:"uploaded_at"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Answer string `json:"answer"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Client is a plain request/response wrapper over the remote service.
// No retries, no caching; retry policy belongs to the caller.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Ingest(ctx context.Context, filename string, file io.Reader) (IngestResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return IngestResult{}, &RemoteError{Message: err.Error()}
	}
	if _, err := io.Copy(part, file); err != nil {
		return IngestResult{}, &RemoteError{Message: err.Error()}
	}
	if err := mw.Close(); err != nil {
		return IngestResult{}, &RemoteError{Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/ingest", &body)
	if err != nil {
		return IngestResult{}, &RemoteError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out IngestResult
	if err := c.do(req, &out); err != nil {
		return IngestResult{}, err
	}
	return out, nil
}

func (c *Client) Query(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(queryRequest{Query: text})
	if err != nil {
		return "", &RemoteError{Message: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return "", &RemoteError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	var out queryResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

func (c *Client) ListDocuments(ctx context.Context) (DocumentList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/documents", nil)
	if err != nil {
		return DocumentList{}, &RemoteError{Message: err.Error()}
	}
	var out DocumentList
	if err := c.do(req, &out); err != nil {
		return DocumentList{}, err
	}
	return out, nil
}

func (c *Client) DeleteDocument(ctx context.Context, filename, uploadedAt string) error {
	target := c.DocumentURL(filename)
	if uploadedAt != "" {
		target += "?uploaded_at=" + url.QueryEscape(uploadedAt)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return &RemoteError{Message: err.Error()}
	}
	return c.do(req, nil)
}

func (c *Client) FetchDocument(ctx context.Context, filename string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DocumentURL(filename), nil)
	if err != nil {
		return &RemoteError{Message: err.Error()}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &RemoteError{Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteErrorFrom(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return &RemoteError{Message: err.Error()}
	}
	return nil
}

func (c *Client) DocumentURL(filename string) string {
	return c.BaseURL + "/documents/" + url.PathEscape(filename)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &RemoteError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteErrorFrom(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

func remoteErrorFrom(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(b))
	var detail errorResponse
	if json.Unmarshal(b, &detail) == nil && detail.Detail != "" {
		msg = detail.Detail
	}
	if msg == "" {
		msg = resp.Status
	}
	return &RemoteError{Status: resp.StatusCode, Message: msg}
}
