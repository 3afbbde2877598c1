package constants

import "time"

// Network defaults
const (
	DefaultAddr        = ":8088"
	DefaultDataSrcURL  = "ws://localhost:3001"
	SubProtocol        = "wvss1.0"
	WSBufferSize       = 16384
	MaxWSMessageSize   = 1 * 1024 * 1024
	WSHandshakeTimeout = 10 * time.Second
	WriteTimeout       = 10 * time.Second
	DialRetryInterval  = 5 * time.Second
	MockFeedInterval   = 1 * time.Second
)

// Session settings
const (
	MaxConnectionsPerIP = 10
	CleanupInterval     = 10 * time.Second
	// PendingRequestTTL bounds how long a get request or a forwarded
	// data source request may stay unanswered before it is expired.
	PendingRequestTTL = 60 * time.Second
)

// Authorization
const (
	AuthorizeTTL      = 30 * time.Second
	DefaultValidToken = "VALIDTOKEN"
)

// DefaultRestrictedPaths are denied for every action until an authorize
// grant flips them. Paths not listed here are unrestricted.
var DefaultRestrictedPaths = []string{
	"Signal.Cabin.Door.Row1.Right.IsLocked",
	"Signal.Cabin.Door.Row1.Left.IsLocked",
	"Signal.Cabin.HVAC.Row1.RightTemperature",
	"Signal.Cabin.HVAC.Row1.LeftTemperature",
}

// API endpoints
const (
	EndpointWebSocket = "/"
	EndpointStatus    = "/api/status"
)

// Redis signal cache
const (
	RedisKeyPrefix = "visgw:signal:"
	RedisSignalTTL = 5 * time.Minute
)

// Error values on the wire. Access failures carry the bare VISS status
// code, matching the W3C draft error tables.
const (
	ErrForbidden       = "403"
	ErrInvalidToken    = "invalid token"
	ErrUnknownSubID    = "unknown subscriptionId"
	ErrRequestTimeout  = "request timeout"
	ErrRequestIDInUse  = "requestId in use"
	ErrDataSrcNotReady = "data source unavailable"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorRed    = "\033[31m"
)

const Version = "0.1.0"
