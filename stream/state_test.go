package stream

import "testing"

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		cur  ConnectionState
		ev   connEvent
		want ConnectionState
	}{
		{Disconnected, evDialStart, Connecting},
		{Failed, evDialStart, Connecting},
		{Reconnecting, evDialStart, Connecting},
		{Connected, evDialStart, Connected},

		{Connecting, evOpenOK, Connected},
		{Disconnected, evOpenOK, Disconnected},

		{Connecting, evOpenErr, Disconnected},
		{Connected, evOpenErr, Connected},

		{Connected, evClosed, Reconnecting},
		{Connecting, evClosed, Reconnecting},
		{Reconnecting, evClosed, Reconnecting},
		{Disconnected, evClosed, Disconnected},
		{Failed, evClosed, Failed},

		{Connected, evDisconnect, Disconnected},
		{Reconnecting, evDisconnect, Disconnected},
		{Failed, evDisconnect, Disconnected},

		{Reconnecting, evGiveUp, Failed},
		{Connected, evGiveUp, Connected},
		{Disconnected, evGiveUp, Disconnected},
	}

	for _, tc := range cases {
		if got := nextState(tc.cur, tc.ev); got != tc.want {
			t.Errorf("nextState(%v, %v) = %v, want %v", tc.cur, tc.ev, got, tc.want)
		}
	}
}

func TestStateStrings(t *testing.T) {
	cases := map[ConnectionState]string{
		Disconnected: "disconnected",
		Connecting:   "connecting",
		Connected:    "connected",
		Reconnecting: "reconnecting",
		Failed:       "failed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
