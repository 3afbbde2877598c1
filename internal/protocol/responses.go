package protocol

import "encoding/json"

// Response is one outbound message to a client. Field sets per action are
// fixed by the protocol; unused fields are omitted from the wire.
type Response struct {
	Action         string          `json:"action,omitempty"`
	RequestID      string          `json:"requestId,omitempty"`
	SubscriptionID string          `json:"subscriptionId,omitempty"`
	Path           string          `json:"path,omitempty"`
	Value          json.RawMessage `json:"value,omitempty"`
	VSS            json.RawMessage `json:"vss,omitempty"`
	TTL            int64           `json:"TTL,omitempty"`
	Error          string          `json:"error,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"`

	// nullSubID renders subscriptionId as an explicit null. Only the
	// unsubscribeAll success shape carries it that way on the wire.
	nullSubID bool
}

func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	if !r.nullSubID {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		plain
		SubscriptionID json.RawMessage `json:"subscriptionId"`
	}{plain: plain(r), SubscriptionID: json.RawMessage("null")})
}

func GetSuccessResponse(reqID string, value json.RawMessage, ts string) Response {
	return Response{Action: "get", RequestID: reqID, Value: value, Timestamp: ts}
}

func GetErrorResponse(reqID, errVal, ts string) Response {
	return Response{Action: "get", RequestID: reqID, Error: errVal, Timestamp: ts}
}

func SetSuccessResponse(reqID, ts string) Response {
	return Response{Action: "set", RequestID: reqID, Timestamp: ts}
}

func SetErrorResponse(reqID, errVal, ts string) Response {
	return Response{Action: "set", RequestID: reqID, Error: errVal, Timestamp: ts}
}

func SubscribeSuccessResponse(reqID, subID, ts string) Response {
	return Response{Action: "subscribe", RequestID: reqID, SubscriptionID: subID, Timestamp: ts}
}

func SubscribeErrorResponse(reqID, path, errVal, ts string) Response {
	return Response{Action: "subscribe", RequestID: reqID, Path: path, Error: errVal, Timestamp: ts}
}

// SubscriptionNotification is the repeated per-sample message; it carries
// the subscription id instead of an action.
func SubscriptionNotification(subID, path string, value json.RawMessage, ts string) Response {
	return Response{SubscriptionID: subID, Path: path, Value: value, Timestamp: ts}
}

func UnsubscribeSuccessResponse(action, reqID, subID, ts string) Response {
	return Response{Action: action, RequestID: reqID, SubscriptionID: subID, Timestamp: ts, nullSubID: subID == ""}
}

func UnsubscribeErrorResponse(action, reqID, subID, errVal, ts string) Response {
	return Response{Action: action, RequestID: reqID, SubscriptionID: subID, Error: errVal, Timestamp: ts}
}

func VSSSuccessResponse(reqID string, vss json.RawMessage) Response {
	return Response{Action: "getVSS", RequestID: reqID, VSS: vss}
}

func VSSErrorResponse(reqID, errVal string) Response {
	return Response{Action: "getVSS", RequestID: reqID, Error: errVal}
}

func AuthorizeSuccessResponse(reqID string, ttlSeconds int64) Response {
	return Response{Action: "authorize", RequestID: reqID, TTL: ttlSeconds}
}

func AuthorizeErrorResponse(reqID, errVal string) Response {
	return Response{Action: "authorize", RequestID: reqID, Error: errVal}
}
