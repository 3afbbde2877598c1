package gateway

import (
	"encoding/json"
	"log"

	"visgw/internal/protocol"
	"visgw/internal/session"
	"visgw/internal/signalcache"
)

// Engine fans data source events out to sessions. Correlated set/getVSS
// replies answer exactly one session; unsolicited sample batches are matched
// against every session's outstanding get and subscribe requests.
type Engine struct {
	registry *session.Registry
	corr     *CorrelationMap
	cache    signalcache.Store
}

func NewEngine(registry *session.Registry, corr *CorrelationMap, cache signalcache.Store) *Engine {
	return &Engine{registry: registry, corr: corr, cache: cache}
}

// HandleDataSourceMessage processes one raw message pushed by the data
// source. Malformed payloads are logged and dropped.
func (e *Engine) HandleDataSourceMessage(raw []byte) {
	var msg protocol.DataSourceMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("⚠️  Irregular JSON from data source ignored: %v", err)
		return
	}

	switch {
	case msg.VSS != nil:
		e.handleCorrelated(msg.VSS, true)
	case msg.Set != nil:
		e.handleCorrelated(msg.Set, false)
	case len(msg.Data) > 0:
		e.handleBatch(msg.Data)
	}
}

// handleCorrelated answers the one session that forwarded the request. A
// correlation id that does not resolve, or resolves to a session that has
// since disconnected, is dropped silently.
func (e *Engine) handleCorrelated(result *protocol.DataSourceResult, isVSS bool) {
	sessionID, requestID, ok := e.corr.Resolve(result.DataSrcRequestID)
	if !ok {
		log.Printf("⚠️  Unmatched data source response dropped: %s", result.DataSrcRequestID)
		return
	}

	sess, ok := e.registry.Get(sessionID)
	if !ok {
		// Session vanished while the round trip was in flight.
		return
	}

	req, ok := sess.Table.Lookup(requestID)
	if !ok {
		return
	}

	// Unregister claims the request; if the expiry janitor got there first
	// it already answered, and a second response must not go out.
	if err := sess.Table.Unregister(req.ID); err != nil {
		return
	}

	var resp protocol.Response
	if isVSS {
		if result.Error != "" {
			resp = protocol.VSSErrorResponse(req.ID, result.Error)
		} else {
			resp = protocol.VSSSuccessResponse(req.ID, result.VSS)
		}
	} else {
		ts := result.Timestamp
		if ts == "" {
			ts = protocol.Timestamp()
		}
		if result.Error != "" {
			resp = protocol.SetErrorResponse(req.ID, result.Error, ts)
		} else {
			resp = protocol.SetSuccessResponse(req.ID, ts)
		}
	}

	if err := sess.Send(resp); err != nil {
		log.Printf("⚠️  [%s] Failed to send correlated response: %v", sess.ID, err)
	}
}

// handleBatch matches each session's outstanding get/subscribe requests
// against the batch. Paths compare by exact string equality; the first
// matching sample wins. A matched get is answered once and removed, a
// subscription notifies on every batch until unsubscribed.
func (e *Engine) handleBatch(samples []protocol.SignalSample) {
	e.cache.Update(samples)

	e.registry.Range(func(sess *session.Session) bool {
		for _, req := range sess.Table.Snapshot() {
			if req.Action != protocol.ActionGet && req.Action != protocol.ActionSubscribe {
				continue
			}
			sample, ok := matchPath(req.Path, samples)
			if !ok {
				continue
			}

			switch req.Action {
			case protocol.ActionGet:
				// Claim before answering; a get the janitor already
				// expired gets nothing more.
				if err := sess.Table.Unregister(req.ID); err != nil {
					continue
				}
				if err := sess.Send(protocol.GetSuccessResponse(req.ID, sample.Value, sample.Timestamp)); err != nil {
					log.Printf("⚠️  [%s] Failed to send get response: %v", sess.ID, err)
				}
			case protocol.ActionSubscribe:
				note := protocol.SubscriptionNotification(req.SubscriptionID, req.Path, sample.Value, sample.Timestamp)
				if err := sess.Send(note); err != nil {
					log.Printf("⚠️  [%s] Failed to send notification: %v", sess.ID, err)
				}
			}
		}
		return true
	})
}

// matchPath finds the first sample whose path equals the requested path.
// Paths are opaque strings here: no hierarchy, no wildcards.
func matchPath(path string, samples []protocol.SignalSample) (protocol.SignalSample, bool) {
	for _, sample := range samples {
		if sample.Path == path {
			return sample, true
		}
	}
	return protocol.SignalSample{}, false
}
