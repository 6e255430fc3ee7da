package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ogurasousui/timesheet-sync/internal/core/blobstore"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultBranch  = "main"
	defaultTimeout = 10 * time.Second
	apiVersion     = "2022-11-28"
	maxErrorBody   = 4 << 10
)

// Config は GitHub Contents API クライアントの設定です。
type Config struct {
	BaseURL           string
	Repo              string
	Branch            string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client は GitHub リポジトリ上のファイルを blobstore.Store として扱います。
// バージョンはファイルの blob sha です。
type Client struct {
	baseURL string
	repo    string
	branch  string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// New は Client を生成します。
func New(cfg Config) (*Client, error) {
	repo := strings.Trim(strings.TrimSpace(cfg.Repo), "/")
	if owner, name, ok := strings.Cut(repo, "/"); !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("github: repo must be owner/name, got %q", cfg.Repo)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	branch := strings.TrimSpace(cfg.Branch)
	if branch == "" {
		branch = defaultBranch
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		baseURL: baseURL,
		repo:    repo,
		branch:  branch,
		token:   cfg.Token,
		http:    httpClient,
		limiter: limiter,
	}, nil
}

type contentResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
}

type blobResponse struct {
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
}

type putBody struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// Fetch はファイルの内容と sha を取得します。
// Contents API が本文を返さない大きなファイルは Git Blobs API から取得します。
func (c *Client) Fetch(ctx context.Context, path string) (*blobstore.Blob, error) {
	endpoint := c.contentsURL(path) + "?ref=" + url.QueryEscape(c.branch)
	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &blobstore.TransportError{Op: "fetch", Path: path, Err: err}
	}

	switch {
	case status == http.StatusNotFound:
		return nil, blobstore.ErrNotFound
	case status != http.StatusOK:
		return nil, &blobstore.TransportError{Op: "fetch", Path: path, StatusCode: status, Err: errors.New(snippet(body))}
	}

	var resp contentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &blobstore.TransportError{Op: "fetch", Path: path, StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Type != "" && resp.Type != "file" {
		return nil, &blobstore.TransportError{Op: "fetch", Path: path, StatusCode: status, Err: fmt.Errorf("unexpected content type %q", resp.Type)}
	}
	if resp.SHA == "" {
		return nil, &blobstore.TransportError{Op: "fetch", Path: path, StatusCode: status, Err: errors.New("response has no sha")}
	}

	var content []byte
	if resp.Encoding == "base64" && (resp.Content != "" || resp.Size == 0) {
		content, err = decodeBase64(resp.Content)
	} else {
		content, err = c.fetchBlob(ctx, path, resp.SHA)
	}
	if err != nil {
		return nil, &blobstore.TransportError{Op: "fetch", Path: path, StatusCode: status, Err: err}
	}

	return &blobstore.Blob{Path: path, Content: content, Version: resp.SHA}, nil
}

func (c *Client) fetchBlob(ctx context.Context, path, sha string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/git/blobs/%s", c.baseURL, c.repo, url.PathEscape(sha))
	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("blob %s: status %d: %s", sha, status, snippet(body))
	}

	var resp blobResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode blob response: %w", err)
	}
	if resp.Encoding != "base64" {
		return nil, fmt.Errorf("blob %s for %s: unsupported encoding %q", sha, path, resp.Encoding)
	}
	return decodeBase64(resp.Content)
}

// Put はファイルを書き込みます。Version が空の場合は新規作成のみを行います。
func (c *Client) Put(ctx context.Context, req blobstore.PutRequest) (string, error) {
	message := req.Message
	if message == "" {
		message = "Update " + req.Path
	}
	payload, err := json.Marshal(putBody{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(req.Content),
		Branch:  c.branch,
		SHA:     req.Version,
	})
	if err != nil {
		return "", fmt.Errorf("github: encode request: %w", err)
	}

	status, body, err := c.do(ctx, http.MethodPut, c.contentsURL(req.Path), payload)
	if err != nil {
		return "", &blobstore.TransportError{Op: "put", Path: req.Path, Err: err}
	}

	switch {
	case status == http.StatusOK || status == http.StatusCreated:
	case status == http.StatusConflict:
		return "", &blobstore.ConflictError{Path: req.Path, Expected: req.Version}
	case status == http.StatusUnprocessableEntity && req.Version == "":
		return "", &blobstore.ConflictError{Path: req.Path}
	default:
		return "", &blobstore.TransportError{Op: "put", Path: req.Path, StatusCode: status, Err: errors.New(snippet(body))}
	}

	var resp putResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &blobstore.TransportError{Op: "put", Path: req.Path, StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Content.SHA == "" {
		return "", &blobstore.TransportError{Op: "put", Path: req.Path, StatusCode: status, Err: errors.New("response has no sha")}
	}
	return resp.Content.SHA, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) contentsURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, c.repo, strings.Join(segments, "/"))
}

func decodeBase64(s string) ([]byte, error) {
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(s)
	b, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("decode base64 content: %w", err)
	}
	return b, nil
}

func snippet(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}
