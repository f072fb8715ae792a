package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// maxResponseSize caps how much of a response body is read into memory.
const maxResponseSize = 32 << 20

// Transport performs the raw HTTP round trips the bot needs.
type Transport interface {
	// Get fetches url and returns the response body.
	Get(ctx context.Context, url string) ([]byte, error)
	// PostMultipart uploads the file at filePath as form field fieldName.
	PostMultipart(ctx context.Context, url, fieldName, filePath string) ([]byte, error)
}

// Error is returned for every failure at the transport boundary.
type Error struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: %s %s: unexpected status %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type timeoutKey struct{}

// WithTimeout returns a context whose requests use d instead of the
// transport's default timeout. Long polls need this because the server
// holds them open longer than ordinary calls take.
func WithTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, timeoutKey{}, d)
}

// HTTPTransport implements Transport on top of net/http.
type HTTPTransport struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewHTTPTransport creates a transport. timeout bounds each request unless
// the context carries its own via WithTimeout; zero means the request waits
// as long as the context allows.
func NewHTTPTransport(timeout time.Duration, logger *zap.Logger) *HTTPTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPTransport{
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

// WithClient replaces the underlying HTTP client.
func (t *HTTPTransport) WithClient(client *http.Client) *HTTPTransport {
	t.client = client
	return t
}

func (t *HTTPTransport) Get(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := t.withDeadline(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		redacted := Redact(rawURL)
		return nil, &Error{Op: "GET", URL: redacted, Err: scrub(err, redacted)}
	}
	return t.do(req, "GET")
}

func (t *HTTPTransport) PostMultipart(ctx context.Context, rawURL, fieldName, filePath string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, &Error{Op: "POST", URL: Redact(rawURL), Err: err}
	}
	defer file.Close()

	ctx, cancel := t.withDeadline(ctx)
	defer cancel()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		part, err := form.CreateFormFile(fieldName, filepath.Base(filePath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, pr)
	if err != nil {
		pr.Close()
		redacted := Redact(rawURL)
		return nil, &Error{Op: "POST", URL: redacted, Err: scrub(err, redacted)}
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	body, err := t.do(req, "POST")
	// Unblocks the writer goroutine if the request ended before the body was drained.
	pr.Close()
	return body, err
}

func (t *HTTPTransport) do(req *http.Request, op string) ([]byte, error) {
	redacted := Redact(req.URL.String())
	start := time.Now()

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &Error{Op: op, URL: redacted, Err: scrub(err, redacted)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &Error{Op: op, URL: redacted, Err: scrub(err, redacted)}
	}

	t.logger.Debug("http round trip",
		zap.String("op", op),
		zap.String("url", redacted),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Op: op, URL: redacted, StatusCode: resp.StatusCode}
	}
	return body, nil
}

func (t *HTTPTransport) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := t.timeout
	if d, ok := ctx.Value(timeoutKey{}).(time.Duration); ok {
		timeout = d
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// scrub replaces the URL net/http embeds in its errors, which still carries
// the query string, with the redacted one.
func scrub(err error, redacted string) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &url.Error{Op: uerr.Op, URL: redacted, Err: uerr.Err}
	}
	return err
}

// Redact strips the query string so credentials never end up in errors or logs.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	u.Fragment = ""
	return u.String()
}
