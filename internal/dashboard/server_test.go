package dashboard

import (
	"testing"
	"time"

	"akashwatch/config"
	"akashwatch/logger"
	"akashwatch/models"
	"akashwatch/stream"
)

type fakeStatus struct {
	state stream.ConnectionState
	subs  int
}

func (f *fakeStatus) ConnectionState() stream.ConnectionState { return f.state }
func (f *fakeStatus) SubscriptionCount() int                  { return f.subs }

func TestNewServerDisabledReturnsNil(t *testing.T) {
	srv := NewServer(config.DashboardConfig{Enabled: false}, &fakeStatus{}, logger.GetLogger())
	if srv != nil {
		t.Fatal("disabled dashboard must return nil")
	}
}

func TestNilServerMethodsAreNoops(t *testing.T) {
	var srv *Server
	srv.Record(models.DeploymentEvent{Type: models.DeploymentCreated})
	if err := srv.Run(nil); err != nil {
		t.Fatalf("nil Run returned error: %v", err)
	}
}

func TestRecordCountsPerEventType(t *testing.T) {
	srv := NewServer(config.DashboardConfig{
		Enabled:         true,
		Address:         ":0",
		HistoryLimit:    10,
		RefreshInterval: time.Minute,
	}, &fakeStatus{state: stream.Connected, subs: 2}, logger.GetLogger())
	if srv == nil {
		t.Fatal("enabled dashboard returned nil")
	}

	srv.Record(models.DeploymentEvent{Type: models.DeploymentCreated})
	srv.Record(models.DeploymentEvent{Type: models.DeploymentCreated})
	srv.Record(models.LeaseEvent{Type: models.LeaseClosed})

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.counters[models.DeploymentCreated] != 2 {
		t.Errorf("deployment.created = %d, want 2", srv.counters[models.DeploymentCreated])
	}
	if srv.counters[models.LeaseClosed] != 1 {
		t.Errorf("lease.closed = %d, want 1", srv.counters[models.LeaseClosed])
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ":8089"},
		{"  ", ":8089"},
		{"8090", ":8090"},
		{":7000", ":7000"},
		{"localhost:9000", "localhost:9000"},
		{"0.0.0.0:8089", "0.0.0.0:8089"},
	}
	for _, tc := range cases {
		if got := normalizeAddress(tc.in); got != tc.want {
			t.Errorf("normalizeAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
