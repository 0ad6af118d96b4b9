package sink

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"golang.org/x/net/http/httpguts"
)

// HTTPConfig describes the invariant shape of every outbound request.
type HTTPConfig struct {
	Endpoint           string        `yaml:"endpoint"`
	Method             string        `yaml:"method"`
	UserAgent          string        `yaml:"user_agent"`
	Headers            []string      `yaml:"headers"`
	HTTPConnectTimeout time.Duration `yaml:"http_connect_timeout"`
	HTTPRequestTimeout time.Duration `yaml:"http_request_timeout"`
	URLParameters      []Parameter   `yaml:"url_parameters"`
}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodConnect: true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// Template is the pre-built request every record is sent with.
// The builder it holds is only ever cloned, never modified, so a Template
// can be copied and shared freely.
type Template struct {
	builder  *requests.Builder
	method   string
	endpoint *url.URL
	header   http.Header
}

type templateOptions struct {
	transport      http.RoundTripper
	recordRequests string
}

// TemplateOption is a functional option for configuring BuildTemplate.
type TemplateOption func(*templateOptions)

// TemplateWithTransport replaces the transport of the built client.
// The connect timeout does not apply to a replaced transport.
func TemplateWithTransport(rt http.RoundTripper) TemplateOption {
	return func(o *templateOptions) {
		o.transport = rt
	}
}

// TemplateWithRecordedRequests stores every request and response under dir.
func TemplateWithRecordedRequests(dir string) TemplateOption {
	return func(o *templateOptions) {
		o.recordRequests = dir
	}
}

// BuildTemplate validates the config and builds the request template.
// No network I/O happens here.
func BuildTemplate(config HTTPConfig, opts ...TemplateOption) (Template, error) {
	var options templateOptions
	for _, opt := range opts {
		opt(&options)
	}

	var result Template
	method := strings.ToUpper(strings.TrimSpace(config.Method))
	if !knownMethods[method] {
		return result, fmt.Errorf("%w: unknown http method %q", ErrConfig, config.Method)
	}

	endpoint, err := parseEndpoint(config.Endpoint)
	if err != nil {
		return result, err
	}

	client, err := newClient(config.HTTPConnectTimeout, config.HTTPRequestTimeout)
	if err != nil {
		return result, err
	}

	header, err := parseHeaders(config.UserAgent, config.Headers)
	if err != nil {
		return result, err
	}

	if err = validateParameters(config.URLParameters); err != nil {
		return result, err
	}

	builder := requests.
		URL(endpoint.String()).
		Client(client).
		Method(method)
	for key, values := range header {
		builder = builder.Header(key, values...)
	}
	if options.transport != nil {
		builder = builder.Transport(options.transport)
	}
	if options.recordRequests != "" {
		rt := options.transport
		if rt == nil {
			rt = client.Transport
		}
		builder = builder.Transport(requests.Record(rt, options.recordRequests))
	}

	result.builder = builder
	result.method = method
	result.endpoint = endpoint
	result.header = header
	return result, nil
}

// Method returns the HTTP verb of the template.
func (t Template) Method() string {
	return t.method
}

// Endpoint returns the normalized target URL of the template.
func (t Template) Endpoint() string {
	if t.endpoint == nil {
		return ""
	}
	return t.endpoint.String()
}

// Header returns a copy of the headers every request carries.
func (t Template) Header() http.Header {
	return t.header.Clone()
}

// Clone returns a fresh builder that may be modified for a single record.
func (t Template) Clone() (*requests.Builder, error) {
	if t.builder == nil {
		return nil, fmt.Errorf("%w: template was never built", ErrCloneFailed)
	}
	return t.builder.Clone(), nil
}

// Request materializes the template without any record applied.
func (t Template) Request(ctx context.Context) (*http.Request, error) {
	rb, err := t.Clone()
	if err != nil {
		return nil, err
	}
	req, err := rb.Request(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCloneFailed, err)
	}
	return req, nil
}

func parseEndpoint(endpoint string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint %w", ErrConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: endpoint %q must be an absolute http or https url", ErrConfig, endpoint)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: endpoint %q has no host", ErrConfig, endpoint)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

func newClient(connectTimeout, requestTimeout time.Duration) (*http.Client, error) {
	if connectTimeout < 0 || requestTimeout < 0 {
		return nil, fmt.Errorf("%w: timeouts must not be negative (connect %s, request %s)", ErrConfig, connectTimeout, requestTimeout)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	return &http.Client{
		Timeout:   requestTimeout,
		Transport: transport,
	}, nil
}

// parseHeaders splits each "Name: Value" entry on its first colon.
// Entries without a colon are skipped. Repeated names keep every value.
func parseHeaders(userAgent string, raw []string) (http.Header, error) {
	result := make(http.Header)
	result.Set("User-Agent", userAgent)
	for _, h := range raw {
		name, value, found := strings.Cut(h, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("%w: invalid header name %q", ErrConfig, name)
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return nil, fmt.Errorf("%w: invalid value for header %q", ErrConfig, name)
		}
		result.Add(name, value)
	}
	return result, nil
}
