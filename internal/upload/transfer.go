package upload

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-http-utils/headers"
	"github.com/pkg/errors"
)

const maxErrorBody = 4 << 10

// Transferer sends part payloads to pre-signed storage URLs.
type Transferer struct {
	client  *http.Client
	timeout time.Duration
}

func NewTransferer(client *http.Client, timeout time.Duration) *Transferer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Transferer{client: client, timeout: timeout}
}

// Transfer uploads size bytes of body to url and returns the confirmation tag
// found in the response ETag header with any surrounding quotes removed.
// progress receives the percentage of the part sent so far, starting at 0.
func (t *Transferer) Transfer(ctx context.Context, url string, body io.Reader, size int64, contentType string, progress func(percent int)) (string, error) {
	if progress == nil {
		progress = func(int) {}
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	progress(0)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, &progressReader{r: body, size: size, report: progress})
	if err != nil {
		return "", &Error{Kind: KindTransferError, Message: "invalid part URL", cause: err}
	}
	req.ContentLength = size
	req.Header.Set(headers.ContentType, contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		msg := "request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "request timed out"
		}
		return "", &Error{Kind: KindTransferError, Message: msg, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &Error{Kind: KindTransferError, StatusCode: resp.StatusCode, Body: string(b)}
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	tag := strings.Trim(resp.Header.Get(headers.ETag), `"`)
	if tag == "" {
		return "", &Error{Kind: KindMissingConfirmationTag, StatusCode: resp.StatusCode, Message: "response has no ETag header"}
	}
	progress(100)
	return tag, nil
}

type progressReader struct {
	r       io.Reader
	size    int64
	read    int64
	percent int
	report  func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.size > 0 {
		if pct := int(p.read * 100 / p.size); pct > p.percent && pct <= 100 {
			p.percent = pct
			p.report(pct)
		}
	}
	return n, err
}
