package cdpcontrol

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyByCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassUnknown},
		{"channel lost code", NewError(CodeChannelLost, "send", nil), ClassTransientChannel},
		{"cdp unavailable code", NewError(CodeCDPUnavailable, "dial browser", nil), ClassTransientChannel},
		{"recovery failed code", NewError(CodeRecoveryFailed, "gave up", nil), ClassTerminal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %v; want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassifyByMessagePattern(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want Class
	}{
		{"target closed", "cdp: Page.enable: Target closed", ClassTransientChannel},
		{"session not found", "cdp: No session with given id", ClassTransientChannel},
		{"websocket broken", "websocket: close 1006 (abnormal closure)", ClassTransientChannel},
		{"connection reset", "read tcp: connection reset by peer", ClassTransientChannel},
		{"already pressed", "cdp: Input.dispatchMouseEvent: button already pressed", ClassInputState},
		{"not pressed", "cdp: button is not pressed", ClassInputState},
		{"no execution context", "cdp: Cannot find context with specified id", ClassIntrospection},
		{"deadline", "context deadline exceeded", ClassIntrospection},
		{"unrelated", "invalid parameters", ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(errors.New(tc.msg)); got != tc.want {
				t.Fatalf("Classify(%q) = %v; want %v", tc.msg, got, tc.want)
			}
		})
	}
}

func TestClassifyWrappedCodedError(t *testing.T) {
	err := fmt.Errorf("switch tab: %w", NewError(CodeChannelLost, "not connected", nil))
	if got := Classify(err); got != ClassTransientChannel {
		t.Fatalf("Classify(wrapped) = %v; want %v", got, ClassTransientChannel)
	}
}

func TestIsSessionGone(t *testing.T) {
	if !IsSessionGone(errors.New("cdp: Target closed")) {
		t.Fatal("IsSessionGone(target closed) = false; want true")
	}
	if !IsSessionGone(errors.New("Session not found")) {
		t.Fatal("IsSessionGone(session not found) = false; want true")
	}
	if IsSessionGone(errors.New("invalid parameters")) {
		t.Fatal("IsSessionGone(invalid parameters) = true; want false")
	}
	if IsSessionGone(nil) {
		t.Fatal("IsSessionGone(nil) = true; want false")
	}
}

func TestCodedErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewError(CodeCDPUnavailable, "dial browser", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is() = false; want unwrap to %v", cause)
	}
	var coded *CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("errors.As() = false; want *CodedError")
	}
	if coded.Code != CodeCDPUnavailable {
		t.Fatalf("code = %q; want %q", coded.Code, CodeCDPUnavailable)
	}
}
