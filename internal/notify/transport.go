package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"frameforge/internal/domain"
)

// Transport performs one delivery attempt.
type Transport interface {
	Post(ctx context.Context, target string, body []byte, header http.Header) error
}

// DeliveryError is a failed attempt: either a transport error or a non-2xx
// response.
type DeliveryError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deliver to %s: %v", domain.RedactURL(e.URL), e.Err)
	}
	return fmt.Sprintf("deliver to %s: status %d: %s", domain.RedactURL(e.URL), e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// HTTPTransport posts JSON with a shared client. Per-attempt deadlines come
// from the context.
type HTTPTransport struct {
	Client *http.Client
}

func (t HTTPTransport) Post(ctx context.Context, target string, body []byte, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{URL: target, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		// url.Error repeats the full URL, token included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return &DeliveryError{URL: target, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &DeliveryError{URL: target, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
	return nil
}
