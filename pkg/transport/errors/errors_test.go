package errors

import (
	"errors"
	"testing"
)

func TestErrUnsupportedTransport(t *testing.T) {
	t.Parallel()
	if ErrUnsupportedTransport == nil {
		t.Fatal("ErrUnsupportedTransport should not be nil")
	}
	if ErrUnsupportedTransport.Error() != "unsupported transport type" {
		t.Errorf("unexpected message: %v", ErrUnsupportedTransport)
	}
	if errors.Is(ErrUnsupportedTransport, ErrCommandNotSet) {
		t.Error("ErrUnsupportedTransport should not be ErrCommandNotSet")
	}
	wrapped := errors.Join(ErrUnsupportedTransport, errors.New("context"))
	if !errors.Is(wrapped, ErrUnsupportedTransport) {
		t.Error("wrapped error should still match ErrUnsupportedTransport")
	}
}

func TestErrCommandNotSet(t *testing.T) {
	t.Parallel()
	if ErrCommandNotSet.Error() != "child process command not set" {
		t.Errorf("unexpected message: %v", ErrCommandNotSet)
	}
	if errors.Is(ErrCommandNotSet, ErrUnsupportedTransport) {
		t.Error("ErrCommandNotSet should not be ErrUnsupportedTransport")
	}
}

func TestDistinctSentinels(t *testing.T) {
	t.Parallel()
	sentinels := []error{
		ErrUnsupportedTransport, ErrConnectionClosed, ErrFrameTooLarge,
		ErrNotConnected, ErrCommandNotSet, ErrHandshakeTimeout,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			if errors.Is(a, b) {
				t.Errorf("%v should not match %v", a, b)
			}
		}
	}
}
