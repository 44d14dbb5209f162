package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-http-utils/headers"
	"github.com/pkg/errors"
)

// Session is an upload session granted by the backend.
type Session struct {
	ID         string
	PartSize   int64
	TotalParts int64
	// Pre-signed destination URL of every part keyed by part number.
	URLs map[int64]string
}

type InitiateRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	TotalSize   int64  `json:"total_size"`
	PartSize    int64  `json:"part_size"`
}

// Backend manages upload sessions on behalf of the controller.
type Backend interface {
	// Initiate opens a session and returns a destination URL per part.
	Initiate(ctx context.Context, req InitiateRequest) (*Session, error)
	// Complete assembles the uploaded parts and returns the resource ID.
	Complete(ctx context.Context, sessionID string, totalParts int64, tags map[int64]string) (string, error)
	// Cancel releases a session and the parts uploaded so far.
	Cancel(ctx context.Context, sessionID string) error
}

type sessionResponse struct {
	SessionId   string           `json:"session_id"`
	PartSize    int64            `json:"part_size"`
	TotalChunks int64            `json:"total_chunks"`
	Urls        map[int64]string `json:"urls"`
}

type completeRequest struct {
	TotalChunks int64            `json:"total_chunks"`
	Etags       map[int64]string `json:"etags"`
}

type completeResponse struct {
	Id string `json:"id"`
}

// Video is a stored video as reported by the backend.
type Video struct {
	Id          string `json:"id"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Status      string `json:"status,omitempty"`
	CreatedAt   int64  `json:"created_at,omitempty"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HTTPBackend talks to the molpastream upload API.
type HTTPBackend struct {
	baseURL     string
	client      *http.Client
	credentials CredentialProvider
}

func NewHTTPBackend(baseURL string, client *http.Client, credentials CredentialProvider) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBackend{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      client,
		credentials: credentials,
	}
}

func (b *HTTPBackend) Initiate(ctx context.Context, req InitiateRequest) (*Session, error) {
	var resp sessionResponse
	if err := b.do(ctx, http.MethodPost, "/molpastream/v1/uploads", req, &resp); err != nil {
		return nil, errors.Wrap(err, "cannot initiate upload session")
	}
	if resp.SessionId == "" {
		return nil, errors.New("upload session has no ID")
	}
	return &Session{
		ID:         resp.SessionId,
		PartSize:   resp.PartSize,
		TotalParts: resp.TotalChunks,
		URLs:       resp.Urls,
	}, nil
}

func (b *HTTPBackend) Complete(ctx context.Context, sessionID string, totalParts int64, tags map[int64]string) (string, error) {
	var resp completeResponse
	path := "/molpastream/v1/uploads/" + url.PathEscape(sessionID) + "/complete"
	if err := b.do(ctx, http.MethodPost, path, completeRequest{TotalChunks: totalParts, Etags: tags}, &resp); err != nil {
		return "", errors.Wrapf(err, "cannot complete upload session %s", sessionID)
	}
	if resp.Id == "" {
		return sessionID, nil
	}
	return resp.Id, nil
}

func (b *HTTPBackend) Cancel(ctx context.Context, sessionID string) error {
	path := "/molpastream/v1/uploads/" + url.PathEscape(sessionID)
	if err := b.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return errors.Wrapf(err, "cannot cancel upload session %s", sessionID)
	}
	return nil
}

// Video looks up the video created by an upload session.
func (b *HTTPBackend) Video(ctx context.Context, id string) (*Video, error) {
	var v Video
	if err := b.do(ctx, http.MethodGet, "/molpastream/v1/videos/"+url.PathEscape(id), nil, &v); err != nil {
		return nil, errors.Wrapf(err, "cannot get video %s", id)
	}
	return &v, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "cannot encode request body")
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set(headers.ContentType, "application/json")
	}
	req.Header.Set(headers.Accept, "application/json")
	if b.credentials != nil {
		tok, err := b.credentials.Token(ctx)
		if err != nil {
			return errors.Wrap(err, "cannot get access token")
		}
		if tok != "" {
			req.Header.Set(headers.Authorization, "Bearer "+tok)
		}
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var e errorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Message != "" {
			msg = e.Message
		}
		return &ResponseError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "cannot decode response body")
	}
	return nil
}
