package models

// EventFilter narrows which decoded events a subscription's callback sees.
// All present fields must match (logical AND); a nil filter accepts every
// event.
type EventFilter struct {
	// Types, when non-empty, is the set of event type tags to accept.
	Types []string
	// Owner, Provider and DSeq match against the corresponding event field.
	Owner    string
	Provider string
	DSeq     string
}

// Matches reports whether ev satisfies the filter.
//
// A filter field that the concrete event variant does not carry is skipped,
// not failed: filtering by Provider against a DeploymentEvent (which has no
// provider) does not exclude the event. Callers that want provider-carrying
// events only should combine Provider with a Types filter. This mirrors the
// upstream behaviour and is deliberate; see the decoder package tests.
func (f *EventFilter) Matches(ev Event) bool {
	if f == nil {
		return true
	}

	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == ev.EventType() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.Owner != "" && ev.EventOwner() != f.Owner {
		return false
	}

	if f.DSeq != "" && ev.EventDSeq() != f.DSeq {
		return false
	}

	if f.Provider != "" {
		if provider, ok := EventProvider(ev); ok && provider != f.Provider {
			return false
		}
	}

	return true
}
