package models

import "time"

// Event type tags carried by every decoded chain event.
const (
	DeploymentCreated = "deployment.created"
	DeploymentUpdated = "deployment.updated"
	DeploymentClosed  = "deployment.closed"
	OrderCreated      = "order.created"
	OrderClosed       = "order.closed"
	BidCreated        = "bid.created"
	BidClosed         = "bid.closed"
	LeaseCreated      = "lease.created"
	LeaseClosed       = "lease.closed"
)

// Event is implemented by every decoded chain event. EventType returns the
// tag ("deployment.created", "lease.closed", ...), EventHeight the block
// height the transaction was committed at and EventOwner the bech32 account
// that owns the resource.
type Event interface {
	EventType() string
	EventHeight() int64
	EventOwner() string
	EventDSeq() string
}

// Coin is a denominated token amount as it appears in bid and lease prices.
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// DeploymentEvent signals a deployment being created, updated or closed.
type DeploymentEvent struct {
	Type      string    `json:"type"`
	Height    int64     `json:"height"`
	Timestamp time.Time `json:"timestamp"`
	Owner     string    `json:"owner"`
	DSeq      string    `json:"dseq"`
	Version   string    `json:"version,omitempty"`
	State     string    `json:"state,omitempty"`
}

func (e DeploymentEvent) EventType() string  { return e.Type }
func (e DeploymentEvent) EventHeight() int64 { return e.Height }
func (e DeploymentEvent) EventOwner() string { return e.Owner }
func (e DeploymentEvent) EventDSeq() string  { return e.DSeq }

// OrderEvent signals a market order being opened or closed.
type OrderEvent struct {
	Type      string    `json:"type"`
	Height    int64     `json:"height"`
	Timestamp time.Time `json:"timestamp"`
	Owner     string    `json:"owner"`
	DSeq      string    `json:"dseq"`
	GSeq      int       `json:"gseq"`
	OSeq      int       `json:"oseq"`
	State     string    `json:"state,omitempty"`
}

func (e OrderEvent) EventType() string  { return e.Type }
func (e OrderEvent) EventHeight() int64 { return e.Height }
func (e OrderEvent) EventOwner() string { return e.Owner }
func (e OrderEvent) EventDSeq() string  { return e.DSeq }

// BidEvent signals a provider bid on an open order.
type BidEvent struct {
	Type      string    `json:"type"`
	Height    int64     `json:"height"`
	Timestamp time.Time `json:"timestamp"`
	Owner     string    `json:"owner"`
	DSeq      string    `json:"dseq"`
	GSeq      int       `json:"gseq"`
	OSeq      int       `json:"oseq"`
	Provider  string    `json:"provider"`
	Price     *Coin     `json:"price,omitempty"`
	State     string    `json:"state,omitempty"`
}

func (e BidEvent) EventType() string  { return e.Type }
func (e BidEvent) EventHeight() int64 { return e.Height }
func (e BidEvent) EventOwner() string { return e.Owner }
func (e BidEvent) EventDSeq() string  { return e.DSeq }

// LeaseEvent signals a lease between a tenant and a provider.
type LeaseEvent struct {
	Type        string    `json:"type"`
	Height      int64     `json:"height"`
	Timestamp   time.Time `json:"timestamp"`
	Owner       string    `json:"owner"`
	DSeq        string    `json:"dseq"`
	GSeq        int       `json:"gseq"`
	OSeq        int       `json:"oseq"`
	Provider    string    `json:"provider"`
	Price       *Coin     `json:"price,omitempty"`
	State       string    `json:"state,omitempty"`
	CloseReason string    `json:"close_reason,omitempty"`
}

func (e LeaseEvent) EventType() string  { return e.Type }
func (e LeaseEvent) EventHeight() int64 { return e.Height }
func (e LeaseEvent) EventOwner() string { return e.Owner }
func (e LeaseEvent) EventDSeq() string  { return e.DSeq }

// EventProvider returns the provider address of events that carry one. The
// second return is false for deployment and order events, which have no
// provider field.
func EventProvider(ev Event) (string, bool) {
	switch e := ev.(type) {
	case BidEvent:
		return e.Provider, true
	case *BidEvent:
		return e.Provider, true
	case LeaseEvent:
		return e.Provider, true
	case *LeaseEvent:
		return e.Provider, true
	}
	return "", false
}

// Kind returns the module part of an event type tag, e.g. "deployment" for
// "deployment.created". Used for archive partitioning and counters.
func Kind(eventType string) string {
	for i := 0; i < len(eventType); i++ {
		if eventType[i] == '.' {
			return eventType[:i]
		}
	}
	return eventType
}
