package models

import "testing"

func TestKind(t *testing.T) {
	cases := map[string]string{
		DeploymentCreated: "deployment",
		OrderClosed:       "order",
		BidCreated:        "bid",
		LeaseClosed:       "lease",
		"weird":           "weird",
	}
	for in, want := range cases {
		if got := Kind(in); got != want {
			t.Errorf("Kind(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEventProvider(t *testing.T) {
	if _, ok := EventProvider(DeploymentEvent{}); ok {
		t.Error("deployment events must not report a provider")
	}
	if _, ok := EventProvider(OrderEvent{}); ok {
		t.Error("order events must not report a provider")
	}
	if p, ok := EventProvider(BidEvent{Provider: "akash1prov"}); !ok || p != "akash1prov" {
		t.Errorf("bid provider = %q, %v", p, ok)
	}
	if p, ok := EventProvider(LeaseEvent{Provider: "akash1prov"}); !ok || p != "akash1prov" {
		t.Errorf("lease provider = %q, %v", p, ok)
	}
}
