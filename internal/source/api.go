package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/resilience"
)

const (
	DefaultAPIBaseURL = "https://api-statements.tnet.ge/v1"
	DefaultSiteURL    = "https://www.myhome.ge"
	defaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"
)

// APIOptions configures an APIClient.
type APIOptions struct {
	BaseURL    string
	SiteURL    string
	UserAgent  string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	Retry      resilience.RetryConfig
}

// APIClient talks to the statements API. Every request waits on a shared
// rate limiter and transient failures are retried.
type APIClient struct {
	client  *resty.Client
	limiter *rate.Limiter
	opts    APIOptions
	logger  *slog.Logger
}

func NewAPIClient(opts APIOptions, logger *slog.Logger) *APIClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultAPIBaseURL
	}
	if opts.SiteURL == "" {
		opts.SiteURL = DefaultSiteURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = func(attempt int, err error) {
			logger.Warn("Retrying request", "attempt", attempt, "err", err)
		}
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeaders(map[string]string{
			"User-Agent":      opts.UserAgent,
			"Accept":          "application/json, text/plain, */*",
			"Accept-Language": "en-US,en;q=0.9",
			"Accept-Encoding": "identity",
			"Referer":         opts.SiteURL + "/",
			"Origin":          opts.SiteURL,
			"x-website-key":   "myhome",
			"locale":          "ka",
		})

	return &APIClient{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		opts:    opts,
		logger:  logger,
	}
}

// SiteURL is the public website the API backs.
func (c *APIClient) SiteURL() string { return c.opts.SiteURL }

func (c *APIClient) do(ctx context.Context, method, path string, params map[string]string) ([]byte, error) {
	return resilience.DoVal(ctx, c.opts.Retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "api: rate limiter wait")
		}

		req := c.client.R().SetContext(ctx).SetQueryParams(params)
		if method == http.MethodPost {
			req.SetBody(map[string]any{})
		}
		resp, err := req.Execute(method, path)
		if err != nil {
			return nil, resilience.NewTransient(method+" "+path, err)
		}
		if resp.IsError() {
			code := resp.StatusCode()
			return nil, &resilience.Error{
				Kind:       resilience.ClassifyHTTPStatus(code),
				Op:         method + " " + path,
				StatusCode: code,
				Err:        fmt.Errorf("status %d", code),
			}
		}
		return resp.Body(), nil
	})
}

// GetRecords fetches a list endpoint and returns its records. A response
// with result=false or no recognisable list is an empty page.
func (c *APIClient) GetRecords(ctx context.Context, path string, params map[string]string) ([]model.Record, error) {
	body, err := c.do(ctx, http.MethodGet, path, params)
	if err != nil {
		return nil, err
	}
	return DecodeRecords(body)
}

// GetObject fetches a detail endpoint and returns its data object.
func (c *APIClient) GetObject(ctx context.Context, path string, params map[string]string) (model.Record, error) {
	body, err := c.do(ctx, http.MethodGet, path, params)
	if err != nil {
		return nil, err
	}
	return DecodeObject(body)
}

// PostObject POSTs an empty JSON body and returns the data object.
func (c *APIClient) PostObject(ctx context.Context, path string, params map[string]string) (model.Record, error) {
	body, err := c.do(ctx, http.MethodPost, path, params)
	if err != nil {
		return nil, err
	}
	return DecodeObject(body)
}

// FetchHTML fetches an absolute website URL.
func (c *APIClient) FetchHTML(ctx context.Context, url string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, resilience.NewMalformed("api: decode json", err)
	}
	return v, nil
}

// DecodeRecords unwraps the API envelope {"result":true,"data":{"data":[...]}}.
// A bare list, data as a list, data.items and data.brokers are accepted too.
func DecodeRecords(body []byte) ([]model.Record, error) {
	v, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}

	switch t := v.(type) {
	case []any:
		return toRecords(t), nil
	case map[string]any:
		if ok, present := t["result"].(bool); present && !ok {
			return nil, nil
		}
		switch data := t["data"].(type) {
		case []any:
			return toRecords(data), nil
		case map[string]any:
			for _, key := range []string{"data", "items", "brokers"} {
				if list, ok := data[key].([]any); ok {
					return toRecords(list), nil
				}
			}
		}
	}
	return nil, nil
}

// DecodeObject returns the envelope's data object, or nil.
func DecodeObject(body []byte) (model.Record, error) {
	v, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, nil
	}
	if ok, present := obj["result"].(bool); present && !ok {
		return nil, nil
	}
	if data, ok := obj["data"].(map[string]any); ok {
		return model.Record(data), nil
	}
	return nil, nil
}

func toRecords(list []any) []model.Record {
	out := make([]model.Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, model.Record(m))
		}
	}
	return out
}
