package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"

	"github.com/vinayprograms/gatedagent/internal/metrics"
)

const (
	defaultWebTimeout  = 10 * time.Second
	defaultWebRetries  = 2
	defaultInitBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 5 * time.Second
	maxResponseBytes   = 4 << 20
)

// StatusError is returned for non-2xx responses from a search backend.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s search error (%d): %s", e.Provider, e.Code, e.Body)
}

func isRetryableHTTP(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	// transport errors
	return true
}

// HTTPOptions tunes the shared HTTP behaviour of web backends.
type HTTPOptions struct {
	Client      *http.Client
	Timeout     time.Duration
	MaxRetries  int
	RatePerSec  float64 // 0 disables limiting
	InitBackoff time.Duration
	MaxBackoff  time.Duration
}

// webClient performs rate-limited, retried HTTP requests for one provider.
type webClient struct {
	provider string
	client   *http.Client
	limiter  *rate.Limiter
	retry    retrypolicy.RetryPolicy[[]byte]
}

func newWebClient(provider string, opts HTTPOptions) *webClient {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultWebTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitBackoff <= 0 {
		opts.InitBackoff = defaultInitBackoff
	}
	if opts.MaxBackoff < opts.InitBackoff {
		opts.MaxBackoff = opts.InitBackoff
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	retry := retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool { return isRetryableHTTP(err) }).
		WithBackoff(opts.InitBackoff, opts.MaxBackoff).
		WithMaxRetries(opts.MaxRetries).
		WithJitterFactor(0.1).
		Build()
	return &webClient{provider: provider, client: client, limiter: limiter, retry: retry}
}

// do sends the request built by newReq, retrying transient failures, and
// returns the response body.
func (w *webClient) do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	body, err := failsafe.With(w.retry).WithContext(ctx).Get(func() ([]byte, error) {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := w.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", w.provider, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("%s read body: %w", w.provider, err)
		}
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			snippet := string(data)
			if len(snippet) > 200 {
				snippet = snippet[:200]
			}
			return nil, &StatusError{Provider: w.provider, Code: resp.StatusCode, Body: snippet}
		}
		return data, nil
	})
	if err != nil {
		metrics.WebSearchErrorsTotal.WithLabelValues(w.provider).Inc()
	}
	return body, err
}

// NewWebSearcher creates the backend named by provider.
func NewWebSearcher(provider, apiKey, baseURL string, opts HTTPOptions) (WebSearcher, error) {
	switch provider {
	case "serper":
		s, err := NewSerper(apiKey, baseURL, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "brave":
		b, err := NewBrave(apiKey, baseURL, opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "duckduckgo":
		return NewDuckDuckGo(baseURL, opts), nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", provider)
	}
}
