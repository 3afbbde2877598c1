package gateway

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"visgw/internal/constants"
	"visgw/internal/protocol"
	"visgw/internal/session"
)

// Forwarder hands requests to the external data source, keyed by a
// correlation id.
type Forwarder interface {
	ForwardSet(path string, value json.RawMessage, correlationID string) error
	ForwardVSS(correlationID string) error
}

// TokenJudge decides whether a presented token bundle is valid.
type TokenJudge interface {
	Judge(tokens map[string]string) bool
}

// Dispatcher routes each inbound client message to its action handler,
// applying the session's access policy and producing at most one response.
type Dispatcher struct {
	registry  *session.Registry
	corr      *CorrelationMap
	forwarder Forwarder
	judge     TokenJudge
	authTTL   time.Duration
}

func NewDispatcher(registry *session.Registry, corr *CorrelationMap, forwarder Forwarder, judge TokenJudge, authTTL time.Duration) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		corr:      corr,
		forwarder: forwarder,
		judge:     judge,
		authTTL:   authTTL,
	}
}

// HandleMessage processes one raw client message. Malformed payloads are
// logged and dropped without a reply.
func (d *Dispatcher) HandleMessage(sessionID string, raw []byte) {
	sess, ok := d.registry.Get(sessionID)
	if !ok {
		log.Printf("⚠️  Message for unknown session %s dropped", sessionID)
		return
	}

	var msg protocol.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("⚠️  [%s] Irregular JSON message ignored: %v", sessionID, err)
		return
	}

	action, ok := protocol.ParseAction(msg.Action)
	if !ok {
		log.Printf("⚠️  [%s] Unknown action %q ignored", sessionID, msg.Action)
		return
	}

	switch action {
	case protocol.ActionGet:
		d.handleGet(sess, &msg)
	case protocol.ActionSet:
		d.handleSet(sess, &msg)
	case protocol.ActionSubscribe:
		d.handleSubscribe(sess, &msg)
	case protocol.ActionUnsubscribe:
		d.handleUnsubscribe(sess, &msg)
	case protocol.ActionUnsubscribeAll:
		d.handleUnsubscribeAll(sess, &msg)
	case protocol.ActionGetVSS:
		d.handleGetVSS(sess, &msg)
	case protocol.ActionAuthorize:
		d.handleAuthorize(sess, &msg)
	}
}

// HandleDisconnect tears the session down and makes its pending correlation
// entries inert.
func (d *Dispatcher) HandleDisconnect(sessionID string) {
	d.registry.Destroy(sessionID)
}

// A get stays pending until the notification engine finds a matching sample.
func (d *Dispatcher) handleGet(sess *session.Session, msg *protocol.Message) {
	err := sess.Table.Register(&session.Request{
		ID:     msg.RequestID,
		Action: protocol.ActionGet,
		Path:   msg.Path,
	})
	if err != nil {
		log.Printf("⚠️  [%s] Failed to register get request: %v (reqId=%s)", sess.ID, err, msg.RequestID)
		return
	}
	log.Printf("📥 [%s] get registered: reqId=%s path=%s", sess.ID, msg.RequestID, msg.Path)
}

func (d *Dispatcher) handleSet(sess *session.Session, msg *protocol.Message) {
	req := &session.Request{
		ID:     msg.RequestID,
		Action: protocol.ActionSet,
		Path:   msg.Path,
		Value:  msg.Value,
	}
	if err := sess.Table.Register(req); err != nil {
		log.Printf("⚠️  [%s] Failed to register set request: %v (reqId=%s)", sess.ID, err, msg.RequestID)
		return
	}

	if !sess.Policy.Check(msg.Path, protocol.ActionSet) {
		log.Printf("⛔ [%s] set denied, authorize required: path=%s", sess.ID, msg.Path)
		sess.Table.Unregister(msg.RequestID)
		d.send(sess, protocol.SetErrorResponse(msg.RequestID, constants.ErrForbidden, protocol.Timestamp()))
		return
	}

	corrID := d.corr.Create(sess.ID, msg.RequestID)
	if err := d.forwarder.ForwardSet(msg.Path, msg.Value, corrID); err != nil {
		log.Printf("⚠️  [%s] set forward failed: %v", sess.ID, err)
		d.corr.Drop(corrID)
		sess.Table.Unregister(msg.RequestID)
		d.send(sess, protocol.SetErrorResponse(msg.RequestID, constants.ErrDataSrcNotReady, protocol.Timestamp()))
		return
	}
	log.Printf("📥 [%s] set forwarded: reqId=%s path=%s", sess.ID, msg.RequestID, msg.Path)
}

// Subscription creation is synchronous; a duplicate request id gets the
// subscribe error variant back instead of silence.
func (d *Dispatcher) handleSubscribe(sess *session.Session, msg *protocol.Message) {
	subID := "subid-" + uuid.New().String()
	ts := protocol.Timestamp()

	err := sess.Table.Register(&session.Request{
		ID:             msg.RequestID,
		Action:         protocol.ActionSubscribe,
		Path:           msg.Path,
		SubscriptionID: subID,
	})
	if err != nil {
		log.Printf("⚠️  [%s] Failed to register subscription: %v (reqId=%s)", sess.ID, err, msg.RequestID)
		d.send(sess, protocol.SubscribeErrorResponse(msg.RequestID, msg.Path, constants.ErrRequestIDInUse, ts))
		return
	}

	log.Printf("📥 [%s] subscribe started: reqId=%s subId=%s path=%s", sess.ID, msg.RequestID, subID, msg.Path)
	d.send(sess, protocol.SubscribeSuccessResponse(msg.RequestID, subID, ts))
}

func (d *Dispatcher) handleUnsubscribe(sess *session.Session, msg *protocol.Message) {
	ts := protocol.Timestamp()

	reqID, ok := sess.Table.RequestIDFor(msg.SubscriptionID)
	if !ok {
		log.Printf("⚠️  [%s] unsubscribe failed, unknown subId=%s", sess.ID, msg.SubscriptionID)
		d.send(sess, protocol.UnsubscribeErrorResponse(msg.Action, msg.RequestID, msg.SubscriptionID, constants.ErrUnknownSubID, ts))
		return
	}
	if err := sess.Table.Unregister(reqID); err != nil {
		d.send(sess, protocol.UnsubscribeErrorResponse(msg.Action, msg.RequestID, msg.SubscriptionID, constants.ErrUnknownSubID, ts))
		return
	}

	log.Printf("📥 [%s] unsubscribed: subId=%s", sess.ID, msg.SubscriptionID)
	d.send(sess, protocol.UnsubscribeSuccessResponse(msg.Action, msg.RequestID, msg.SubscriptionID, ts))
}

// unsubscribeAll always succeeds, even with nothing subscribed.
func (d *Dispatcher) handleUnsubscribeAll(sess *session.Session, msg *protocol.Message) {
	n := sess.Table.RemoveAllSubscriptions()
	log.Printf("📥 [%s] unsubscribed all: %d subscription(s)", sess.ID, n)
	d.send(sess, protocol.UnsubscribeSuccessResponse(msg.Action, msg.RequestID, "", protocol.Timestamp()))
}

// getVSS is forwarded without an access gate; the full tree read is treated
// as always allowed.
func (d *Dispatcher) handleGetVSS(sess *session.Session, msg *protocol.Message) {
	err := sess.Table.Register(&session.Request{
		ID:     msg.RequestID,
		Action: protocol.ActionGetVSS,
		Path:   msg.Path,
	})
	if err != nil {
		log.Printf("⚠️  [%s] Failed to register getVSS request: %v (reqId=%s)", sess.ID, err, msg.RequestID)
		return
	}

	corrID := d.corr.Create(sess.ID, msg.RequestID)
	if err := d.forwarder.ForwardVSS(corrID); err != nil {
		log.Printf("⚠️  [%s] getVSS forward failed: %v", sess.ID, err)
		d.corr.Drop(corrID)
		sess.Table.Unregister(msg.RequestID)
		d.send(sess, protocol.VSSErrorResponse(msg.RequestID, constants.ErrDataSrcNotReady))
		return
	}
	log.Printf("📥 [%s] getVSS forwarded: reqId=%s", sess.ID, msg.RequestID)
}

// authorize never touches the request table.
func (d *Dispatcher) handleAuthorize(sess *session.Session, msg *protocol.Message) {
	if !d.judge.Judge(msg.Tokens) {
		log.Printf("⛔ [%s] authorize token check failed", sess.ID)
		d.send(sess, protocol.AuthorizeErrorResponse(msg.RequestID, constants.ErrInvalidToken))
		return
	}

	sess.Policy.GrantAll(d.authTTL)
	log.Printf("✅ [%s] authorize granted for %s", sess.ID, d.authTTL)
	d.send(sess, protocol.AuthorizeSuccessResponse(msg.RequestID, int64(d.authTTL.Seconds())))
}

func (d *Dispatcher) send(sess *session.Session, resp protocol.Response) {
	if err := sess.Send(resp); err != nil {
		log.Printf("⚠️  [%s] Failed to send response: %v", sess.ID, err)
	}
}
