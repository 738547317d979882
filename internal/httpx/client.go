package httpx

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmespath/go-jmespath"

	"dungeonload/internal/stats"
)

// Recorder receives one sample per finished request.
type Recorder interface {
	RecordRequest(stats.RequestSample)
}

// Response is what the workload sees of an HTTP exchange. Err is set for
// transport failures, in which case Status is 0.
type Response struct {
	Status   int
	Body     []byte
	Duration time.Duration
	Err      error
}

// JSON decodes the body. Invalid or empty bodies decode to nil.
func (r Response) JSON() any {
	if len(r.Body) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// Capture evaluates a JMESPath expression against the JSON body and renders
// scalar results as strings. ok is false when the value is missing or null.
func (r Response) Capture(expr string) (string, bool) {
	doc := r.JSON()
	if doc == nil {
		return "", false
	}
	v, err := jmespath.Search(expr, doc)
	if err != nil || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, x != ""
	case json.Number:
		return x.String(), true
	case float64, bool:
		return fmt.Sprint(x), true
	}
	return "", false
}

type Options struct {
	Timeout  time.Duration
	Insecure bool
	MaxConns int
	Headers  map[string]string
}

// Client is shared by all virtual users; connection reuse is left to the
// underlying transport.
type Client struct {
	http     *http.Client
	headers  map[string]string
	recorder Recorder
}

func New(opts Options, rec Recorder) *Client {
	if opts.MaxConns <= 0 {
		opts.MaxConns = 2000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = opts.MaxConns
	t.MaxConnsPerHost = opts.MaxConns
	t.MaxIdleConnsPerHost = opts.MaxConns
	if opts.Insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: t,
		},
		headers:  opts.Headers,
		recorder: rec,
	}
}

// Request names the call for metrics; Endpoint groups requests whose URLs
// differ only by ids, e.g. "GET /api/players/{id}".
type Request struct {
	Method   string
	URL      string
	Endpoint string
	Body     any
	Headers  map[string]string
	VU       int64
}

func (c *Client) Post(ctx context.Context, url string, body any, headers map[string]string) Response {
	return c.Do(ctx, Request{Method: http.MethodPost, URL: url, Body: body, Headers: headers})
}

func (c *Client) Get(ctx context.Context, url string) Response {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: url})
}

// Do performs the request and records a sample. It never panics on bad input:
// marshal and request-building errors come back as a failed Response.
func (c *Client) Do(ctx context.Context, r Request) Response {
	if r.Endpoint == "" {
		r.Endpoint = r.Method + " " + r.URL
	}
	start := time.Now()
	resp := c.do(ctx, r)
	resp.Duration = time.Since(start)

	if c.recorder != nil {
		sample := stats.RequestSample{
			Timestamp:  start,
			Endpoint:   r.Endpoint,
			Method:     r.Method,
			URL:        r.URL,
			VU:         r.VU,
			StatusCode: resp.Status,
			Duration:   resp.Duration,
			Bytes:      int64(len(resp.Body)),
			Failed:     stats.IsFailure(resp.Status, resp.Err),
		}
		if resp.Err != nil {
			sample.Err = resp.Err.Error()
		}
		c.recorder.RecordRequest(sample)
	}
	return resp
}

func (c *Client) do(ctx context.Context, r Request) Response {
	var body io.Reader
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return Response{Err: fmt.Errorf("encode body: %w", err)}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return Response{Err: err}
	}
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{Status: resp.StatusCode, Body: b, Err: fmt.Errorf("read body: %w", err)}
	}
	return Response{Status: resp.StatusCode, Body: b}
}
