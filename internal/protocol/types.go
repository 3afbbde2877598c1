package protocol

import (
	"encoding/json"
	"strconv"
	"time"
)

// Action is the closed set of client actions. Parsing an inbound message
// yields one of these; handlers switch over the full set so adding or
// removing an action is a compile-visible change.
type Action int

const (
	ActionGet Action = iota
	ActionSet
	ActionSubscribe
	ActionUnsubscribe
	ActionUnsubscribeAll
	ActionGetVSS
	ActionAuthorize
)

func (a Action) String() string {
	switch a {
	case ActionGet:
		return "get"
	case ActionSet:
		return "set"
	case ActionSubscribe:
		return "subscribe"
	case ActionUnsubscribe:
		return "unsubscribe"
	case ActionUnsubscribeAll:
		return "unsubscribeAll"
	case ActionGetVSS:
		return "getVSS"
	case ActionAuthorize:
		return "authorize"
	default:
		return "unknown"
	}
}

// ParseAction maps the wire action string to its Action. The second return
// is false for anything outside the protocol.
func ParseAction(s string) (Action, bool) {
	switch s {
	case "get":
		return ActionGet, true
	case "set":
		return ActionSet, true
	case "subscribe":
		return ActionSubscribe, true
	case "unsubscribe":
		return ActionUnsubscribe, true
	case "unsubscribeAll":
		return ActionUnsubscribeAll, true
	case "getVSS":
		return ActionGetVSS, true
	case "authorize":
		return ActionAuthorize, true
	default:
		return 0, false
	}
}

// Message is one inbound client request. Value stays raw so booleans,
// numbers and strings pass through to the data source untouched.
type Message struct {
	Action         string            `json:"action"`
	RequestID      string            `json:"requestId"`
	Path           string            `json:"path,omitempty"`
	Value          json.RawMessage   `json:"value,omitempty"`
	SubscriptionID string            `json:"subscriptionId,omitempty"`
	Tokens         map[string]string `json:"tokens,omitempty"`
}

// SignalSample is one (path, value, timestamp) triple pushed by the data
// source. A batch shares a single timestamp.
type SignalSample struct {
	Path      string          `json:"path"`
	Value     json.RawMessage `json:"value"`
	Timestamp string          `json:"timestamp"`
}

// DataSourceMessage is anything the data source sends: an unsolicited
// sample batch, or the correlated reply to a forwarded set/getVSS request.
type DataSourceMessage struct {
	Data []SignalSample    `json:"data,omitempty"`
	Set  *DataSourceResult `json:"set,omitempty"`
	VSS  *DataSourceResult `json:"vss,omitempty"`
}

// DataSourceResult carries the correlation id of the request it answers.
type DataSourceResult struct {
	DataSrcRequestID string          `json:"dataSrcRequestId"`
	Error            string          `json:"error,omitempty"`
	Timestamp        string          `json:"timestamp,omitempty"`
	VSS              json.RawMessage `json:"vss,omitempty"`
}

// DataSourceRequest is what the gateway forwards to the data source.
type DataSourceRequest struct {
	Action           string          `json:"action"`
	Path             string          `json:"path,omitempty"`
	Value            json.RawMessage `json:"value,omitempty"`
	DataSrcRequestID string          `json:"dataSrcRequestId"`
}

// Timestamp returns the wire timestamp format: unix epoch milliseconds as a
// decimal string.
func Timestamp() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
