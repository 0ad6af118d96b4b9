package sink

import "time"

// Version is reported in the default user agent.
const Version = "0.1.0"

// HTTPConnectTimeout and HTTPRequestTimeout are the transport timeouts used
// when the config does not set them.
const (
	HTTPConnectTimeout = 15 * time.Second
	HTTPRequestTimeout = 15 * time.Second
)

// DefaultMethod is used when the config does not name one.
const DefaultMethod = "POST"

// DefaultUserAgent identifies the sink to the receiving endpoint.
const DefaultUserAgent = "streamhttp/" + Version

// maxResponseDetail caps how much of a non-2xx response body is logged.
const maxResponseDetail = 512
