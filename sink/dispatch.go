package sink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/carlmjohnson/requests"
	"go.uber.org/zap"
)

// Outcome describes the response to one dispatched record.
// Detail holds the start of the response body for non-2xx responses.
type Outcome struct {
	StatusCode int
	Status     string
	Detail     string
	Elapsed    time.Duration
}

// Success reports whether the response status was 2xx.
func (o Outcome) Success() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

// Dispatcher sends one record at a time from a Template.
type Dispatcher struct {
	Logger  *zap.Logger
	Metrics *Metrics
}

// acceptAnyStatus replaces the default 2xx validator; status codes are
// classified after the exchange instead of failing it.
func acceptAnyStatus(*http.Response) error {
	return nil
}

// Dispatch clones the template, applies the augmentations and body to the
// clone, and sends it. A non-2xx response is logged and returned as an
// Outcome, not an error. Only a failed clone or a transport failure is
// returned as an error. The template is never modified.
func (d Dispatcher) Dispatch(ctx context.Context, template Template, augmentations []Augmentation, body string) (Outcome, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var result Outcome
	rb, err := template.Clone()
	if err != nil {
		d.Metrics.observe(ResultCloneFailed, 0)
		return result, err
	}
	applyAugmentations(rb, template.endpoint, augmentations)

	rb.
		BodyBytes([]byte(body)).
		AddValidator(acceptAnyStatus).
		Handle(func(response *http.Response) error {
			result.StatusCode = response.StatusCode
			result.Status = response.Status
			if !result.Success() {
				detail, _ := io.ReadAll(io.LimitReader(response.Body, maxResponseDetail))
				result.Detail = string(detail)
			}
			return nil
		})

	req, err := rb.Request(ctx)
	if err != nil {
		d.Metrics.observe(ResultCloneFailed, 0)
		return result, fmt.Errorf("%w: %w", ErrCloneFailed, err)
	}

	logger.Info("sending request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Any("headers", req.Header),
		zap.Int("body_bytes", len(body)),
	)

	start := time.Now()
	err = rb.Do(req)
	result.Elapsed = time.Since(start)
	if err != nil {
		d.Metrics.observe(ResultTransportError, result.Elapsed)
		return result, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, req.URL.Redacted(), err)
	}

	if result.Success() {
		d.Metrics.observe(ResultSuccess, result.Elapsed)
		logger.Debug("response status",
			zap.Int("status", result.StatusCode),
			zap.Duration("elapsed", result.Elapsed),
		)
	} else {
		d.Metrics.observe(ResultNonSuccess, result.Elapsed)
		logger.Warn("response status",
			zap.Int("status", result.StatusCode),
			zap.String("status_text", result.Status),
			zap.String("method", req.Method),
			zap.String("url", req.URL.Redacted()),
			zap.String("detail", result.Detail),
			zap.Duration("elapsed", result.Elapsed),
		)
	}
	return result, nil
}

// applyAugmentations appends each augmentation to the query of rb.
// Values already present on the endpoint, and earlier augmentations for
// the same key, are kept: keys accumulate values rather than replace them.
func applyAugmentations(rb *requests.Builder, endpoint *url.URL, augmentations []Augmentation) {
	if len(augmentations) == 0 {
		return
	}
	query := make(url.Values)
	if endpoint != nil {
		query = endpoint.Query()
	}
	var order []string
	seen := make(map[string]bool)
	for _, a := range augmentations {
		// keys arrive URL-encoded; the builder encodes them again on the wire
		key, err := url.QueryUnescape(a.Key)
		if err != nil {
			key = a.Key
		}
		query.Add(key, a.Value)
		if !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
	}
	for _, key := range order {
		rb.Param(key, query[key]...)
	}
}
