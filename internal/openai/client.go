// Package openai talks to the remote file analysis API: it uploads a file
// and asks the inference endpoint for a free text summary of it.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"expensetracker/internal/core"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4.1-mini"
	DefaultPrompt  = "Analyze the attached expense file and report the key insights."

	filesPath     = "/v1/files"
	responsesPath = "/v1/responses"
	uploadPurpose = "assistants"
	betaHeader    = "assistants=v2"
	maxErrorBody  = 4 << 10
)

// Config holds client settings. Zero values fall back to the defaults.
type Config struct {
	BaseURL string
	Model   string
	Prompt  string
	Timeout time.Duration
	TempDir string // where payloads are staged; os.TempDir() when empty
}

// Client uploads files and requests analyses. It never retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	prompt     string
	tempDir    string
}

// NewClient builds a Client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		prompt:     cfg.Prompt,
		tempDir:    cfg.TempDir,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.prompt == "" {
		c.prompt = DefaultPrompt
	}
	return c
}

// Model returns the inference model in use.
func (c *Client) Model() string { return c.model }

// Analyze stages file on local disk, uploads it and returns the first text
// output of the analysis. The staged copy is removed on every path.
func (c *Client) Analyze(ctx context.Context, file core.FileUpload, apiKey string) (string, error) {
	staged, err := c.stage(file)
	if err != nil {
		return "", err
	}
	defer func() {
		staged.Close()
		os.Remove(staged.Name())
	}()

	fileID, err := c.upload(ctx, staged, file, apiKey)
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "File uploaded for analysis",
		"file_name", file.Name,
		"size", file.Size(),
		"file_id", fileID)

	summary, err := c.requestAnalysis(ctx, fileID, apiKey)
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Analysis received", "file_name", file.Name, "summary_len", len(summary))
	return summary, nil
}

func (c *Client) stage(file core.FileUpload) (*os.File, error) {
	f, err := os.CreateTemp(c.tempDir, "expense-upload-*")
	if err != nil {
		return nil, &LocalIOError{Op: "create", Err: err}
	}
	if _, err := f.Write(file.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, &LocalIOError{Op: "write", Err: err}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, &LocalIOError{Op: "rewind", Err: err}
	}
	return f, nil
}

func (c *Client) upload(ctx context.Context, staged io.Reader, file core.FileUpload, apiKey string) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, staged, file))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+filesPath, pr)
	if err != nil {
		pr.Close()
		return "", &UploadError{Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	setAuth(req, apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UploadError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.WarnContext(ctx, "File upload rejected", "status", resp.StatusCode, "body", string(body))
		return "", &UploadError{StatusCode: resp.StatusCode}
	}

	var parsed FileUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &UploadError{Err: fmt.Errorf("decode upload response: %w", err)}
	}
	if parsed.ID == "" {
		return "", &UploadError{Err: errors.New("upload response without file id")}
	}
	return parsed.ID, nil
}

func writeUploadForm(mw *multipart.Writer, staged io.Reader, file core.FileUpload) error {
	if err := mw.WriteField("purpose", uploadPurpose); err != nil {
		return err
	}
	name := filepath.Base(file.Name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload"
	}
	contentType := file.Type
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, staged); err != nil {
		return &LocalIOError{Op: "read", Err: err}
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (c *Client) requestAnalysis(ctx context.Context, fileID, apiKey string) (string, error) {
	payload, err := json.Marshal(responseRequest{
		Model: c.model,
		Input: []inputMessage{{
			Role: "user",
			Content: []inputContent{
				{Type: "input_text", Text: c.prompt},
				{Type: "input_file", FileID: fileID},
			},
		}},
	})
	if err != nil {
		return "", &AnalysisError{Kind: KindRequestFailed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+responsesPath, bytes.NewReader(payload))
	if err != nil {
		return "", &AnalysisError{Kind: KindRequestFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req, apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &AnalysisError{Kind: KindRequestFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.WarnContext(ctx, "Analysis request rejected", "status", resp.StatusCode, "body", string(body))
		return "", &AnalysisError{Kind: KindBadStatus, StatusCode: resp.StatusCode}
	}

	var parsed ResponseMessage
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &AnalysisError{Kind: KindBadResponse, Err: err}
	}
	return parsed.FirstText()
}

func setAuth(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("OpenAI-Beta", betaHeader)
}
