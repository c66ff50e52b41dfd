package stream

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"akashwatch/models"
)

// Raw Tendermint transaction-event payload as delivered inside a
// subscription frame's params. Attribute keys and values arrive
// base64-encoded.

type abciAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type abciEvent struct {
	Type       string          `json:"type"`
	Attributes []abciAttribute `json:"attributes"`
}

type txResult struct {
	Height string `json:"height"`
	Result struct {
		Events []abciEvent `json:"events"`
	} `json:"result"`
}

type eventPayload struct {
	Query string `json:"query,omitempty"`
	Data  struct {
		Type  string `json:"type,omitempty"`
		Value struct {
			TxResult txResult `json:"TxResult"`
		} `json:"value"`
	} `json:"data"`
	// Some node versions flatten the TxResult to the payload root.
	TxResult *txResult `json:"TxResult,omitempty"`
}

// DecodeTxEvent turns a raw transaction-event payload into zero or one typed
// domain event. Frames that do not describe a recognized deployment, order,
// bid or lease action simply produce no event; malformed frames are never an
// error. The returned event's timestamp is the decode-time wall clock, not a
// chain timestamp.
func DecodeTxEvent(payload []byte, now time.Time) (models.Event, bool) {
	var raw eventPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, false
	}

	tx := raw.Data.Value.TxResult
	if len(tx.Result.Events) == 0 && raw.TxResult != nil {
		tx = *raw.TxResult
	}
	if len(tx.Result.Events) == 0 {
		return nil, false
	}

	msg := findEvent(tx.Result.Events, func(t string) bool { return t == "message" })
	if msg == nil {
		return nil, false
	}
	msgAttrs := decodeAttributes(msg.Attributes)
	module, hasModule := msgAttrs["module"]
	action, hasAction := msgAttrs["action"]
	if !hasModule || !hasAction {
		return nil, false
	}

	height := parseHeight(tx.Height)

	switch {
	case module == "deployment":
		return decodeDeployment(tx.Result.Events, action, height, now)
	case module == "market" && strings.Contains(action, "order"):
		return decodeOrder(tx.Result.Events, action, height, now)
	case module == "market" && strings.Contains(action, "bid"):
		return decodeBid(tx.Result.Events, action, height, now)
	case module == "market" && strings.Contains(action, "lease"):
		return decodeLease(tx.Result.Events, action, height, now)
	}
	return nil, false
}

func decodeDeployment(events []abciEvent, action string, height int64, now time.Time) (models.Event, bool) {
	ev := findModuleEvent(events, "deployment")
	if ev == nil {
		return nil, false
	}
	attrs := decodeAttributes(ev.Attributes)
	owner, dseq := attrs["owner"], attrs["dseq"]
	if owner == "" || dseq == "" {
		return nil, false
	}

	eventType := models.DeploymentCreated
	if strings.Contains(action, "close") {
		eventType = models.DeploymentClosed
	} else if strings.Contains(action, "update") {
		eventType = models.DeploymentUpdated
	}

	return models.DeploymentEvent{
		Type:      eventType,
		Height:    height,
		Timestamp: now,
		Owner:     owner,
		DSeq:      dseq,
		Version:   attrs["version"],
		State:     attrs["state"],
	}, true
}

func decodeOrder(events []abciEvent, action string, height int64, now time.Time) (models.Event, bool) {
	ev := findModuleEvent(events, "order")
	if ev == nil {
		return nil, false
	}
	attrs := decodeAttributes(ev.Attributes)
	owner, dseq := attrs["owner"], attrs["dseq"]
	gseq, gok := parseSeq(attrs["gseq"])
	oseq, ook := parseSeq(attrs["oseq"])
	if owner == "" || dseq == "" || !gok || !ook {
		return nil, false
	}

	eventType := models.OrderCreated
	if strings.Contains(action, "close") {
		eventType = models.OrderClosed
	}

	return models.OrderEvent{
		Type:      eventType,
		Height:    height,
		Timestamp: now,
		Owner:     owner,
		DSeq:      dseq,
		GSeq:      gseq,
		OSeq:      oseq,
		State:     attrs["state"],
	}, true
}

func decodeBid(events []abciEvent, action string, height int64, now time.Time) (models.Event, bool) {
	ev := findModuleEvent(events, "bid")
	if ev == nil {
		return nil, false
	}
	attrs := decodeAttributes(ev.Attributes)
	owner, dseq, provider := attrs["owner"], attrs["dseq"], attrs["provider"]
	gseq, gok := parseSeq(attrs["gseq"])
	oseq, ook := parseSeq(attrs["oseq"])
	if owner == "" || dseq == "" || provider == "" || !gok || !ook {
		return nil, false
	}

	eventType := models.BidCreated
	if strings.Contains(action, "close") {
		eventType = models.BidClosed
	}

	return models.BidEvent{
		Type:      eventType,
		Height:    height,
		Timestamp: now,
		Owner:     owner,
		DSeq:      dseq,
		GSeq:      gseq,
		OSeq:      oseq,
		Provider:  provider,
		Price:     parsePrice(attrs),
		State:     attrs["state"],
	}, true
}

func decodeLease(events []abciEvent, action string, height int64, now time.Time) (models.Event, bool) {
	ev := findModuleEvent(events, "lease")
	if ev == nil {
		return nil, false
	}
	attrs := decodeAttributes(ev.Attributes)
	owner, dseq, provider := attrs["owner"], attrs["dseq"], attrs["provider"]
	gseq, gok := parseSeq(attrs["gseq"])
	oseq, ook := parseSeq(attrs["oseq"])
	if owner == "" || dseq == "" || provider == "" || !gok || !ook {
		return nil, false
	}

	eventType := models.LeaseCreated
	if strings.Contains(action, "close") {
		eventType = models.LeaseClosed
	}

	return models.LeaseEvent{
		Type:        eventType,
		Height:      height,
		Timestamp:   now,
		Owner:       owner,
		DSeq:        dseq,
		GSeq:        gseq,
		OSeq:        oseq,
		Provider:    provider,
		Price:       parsePrice(attrs),
		State:       attrs["state"],
		CloseReason: attrs["close-reason"],
	}, true
}

func findEvent(events []abciEvent, match func(string) bool) *abciEvent {
	for i := range events {
		if match(events[i].Type) {
			return &events[i]
		}
	}
	return nil
}

// findModuleEvent locates the typed sub-event for a resource kind. Node event
// type names are CamelCase inside a versioned package path, e.g.
// "akash.market.v1beta4.EventOrderCreated", so the match is case-insensitive.
func findModuleEvent(events []abciEvent, kind string) *abciEvent {
	return findEvent(events, func(t string) bool {
		return strings.Contains(strings.ToLower(t), kind)
	})
}

// decodeAttributes flattens an event's attribute list into a map, decoding
// base64 keys and values. Attributes that are not valid base64 are kept
// verbatim, which covers node versions that already send plain text.
func decodeAttributes(attrs []abciAttribute) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, a := range attrs {
		key := decodeB64(a.Key)
		if key == "" {
			continue
		}
		out[key] = decodeB64(a.Value)
	}
	return out
}

func decodeB64(s string) string {
	if s == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	return string(decoded)
}

// parsePrice combines the price-amount and price-denom attributes into a Coin.
// Both must be present; a lone amount or denom yields no price.
func parsePrice(attrs map[string]string) *models.Coin {
	amount, denom := attrs["price-amount"], attrs["price-denom"]
	if amount == "" || denom == "" {
		return nil
	}
	return &models.Coin{Denom: denom, Amount: amount}
}

func parseSeq(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseHeight(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
