package mcp

import "testing"

func TestLoggingLevelAllows(t *testing.T) {
	cases := []struct {
		threshold LoggingLevel
		msg       LoggingLevel
		want      bool
	}{
		{LoggingLevelInfo, LoggingLevelError, true},
		{LoggingLevelInfo, LoggingLevelInfo, true},
		{LoggingLevelError, LoggingLevelWarning, false},
		{LoggingLevelDebug, LoggingLevelEmergency, true},
		{LoggingLevel("loud"), LoggingLevelError, false},
		{LoggingLevelInfo, LoggingLevel("loud"), false},
	}
	for _, tc := range cases {
		if got := tc.threshold.Allows(tc.msg); got != tc.want {
			t.Errorf("%s.Allows(%s): want %v got %v", tc.threshold, tc.msg, tc.want, got)
		}
	}
}

func TestNegotiateProtocolVersion(t *testing.T) {
	if want, got := "2025-03-26", NegotiateProtocolVersion("2025-03-26"); want != got {
		t.Fatalf("supported version: want %s got %s", want, got)
	}
	if want, got := LatestProtocolVersion, NegotiateProtocolVersion("1999-01-01"); want != got {
		t.Fatalf("unsupported version: want %s got %s", want, got)
	}
	if want, got := LatestProtocolVersion, NegotiateProtocolVersion(""); want != got {
		t.Fatalf("empty version: want %s got %s", want, got)
	}
}
