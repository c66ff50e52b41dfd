package models

import (
	"testing"
	"time"
)

func deploymentEvent(owner, dseq string) DeploymentEvent {
	return DeploymentEvent{
		Type:      DeploymentCreated,
		Height:    100,
		Timestamp: time.Now(),
		Owner:     owner,
		DSeq:      dseq,
	}
}

func leaseEvent(owner, provider string) LeaseEvent {
	return LeaseEvent{
		Type:      LeaseCreated,
		Height:    100,
		Timestamp: time.Now(),
		Owner:     owner,
		DSeq:      "42",
		GSeq:      1,
		OSeq:      1,
		Provider:  provider,
	}
}

func TestNilFilterMatchesEverything(t *testing.T) {
	var f *EventFilter
	if !f.Matches(deploymentEvent("akash1owner", "1")) {
		t.Fatal("nil filter must accept every event")
	}
}

func TestFilterOwner(t *testing.T) {
	f := &EventFilter{Owner: "akash1specific"}
	if f.Matches(deploymentEvent("akash1other", "1")) {
		t.Fatal("mismatching owner must be rejected")
	}
	if !f.Matches(deploymentEvent("akash1specific", "1")) {
		t.Fatal("matching owner must be accepted")
	}
}

func TestFilterDSeq(t *testing.T) {
	f := &EventFilter{DSeq: "100"}
	if f.Matches(deploymentEvent("akash1owner", "200")) {
		t.Fatal("mismatching dseq must be rejected")
	}
	if !f.Matches(deploymentEvent("akash1owner", "100")) {
		t.Fatal("matching dseq must be accepted")
	}
}

func TestFilterTypes(t *testing.T) {
	f := &EventFilter{Types: []string{LeaseCreated, LeaseClosed}}
	if f.Matches(deploymentEvent("akash1owner", "1")) {
		t.Fatal("type outside the set must be rejected")
	}
	if !f.Matches(leaseEvent("akash1owner", "akash1prov")) {
		t.Fatal("type inside the set must be accepted")
	}
}

// Filtering by provider against an event variant without a provider field is
// skipped, not failed: the deployment event passes even though it can never
// carry the requested provider.
func TestFilterProviderSkippedOnProviderlessEvents(t *testing.T) {
	f := &EventFilter{Provider: "akash1prov"}
	if !f.Matches(deploymentEvent("akash1owner", "1")) {
		t.Fatal("provider filter must not exclude events without a provider field")
	}
}

func TestFilterProviderOnLease(t *testing.T) {
	f := &EventFilter{Provider: "akash1prov"}
	if f.Matches(leaseEvent("akash1owner", "akash1other")) {
		t.Fatal("mismatching provider must be rejected")
	}
	if !f.Matches(leaseEvent("akash1owner", "akash1prov")) {
		t.Fatal("matching provider must be accepted")
	}
}

func TestFilterAndSemantics(t *testing.T) {
	f := &EventFilter{Owner: "akash1owner", DSeq: "42", Provider: "akash1prov"}
	ev := leaseEvent("akash1owner", "akash1prov")
	if !f.Matches(ev) {
		t.Fatal("all matching fields must accept")
	}
	f.DSeq = "43"
	if f.Matches(ev) {
		t.Fatal("one mismatching field must reject")
	}
}
