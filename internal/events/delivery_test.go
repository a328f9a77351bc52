package events

import (
	"errors"
	"fmt"
	"testing"
)

func TestPermanent(t *testing.T) {
	base := errors.New("bad")
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) must be nil")
	}
	err := fmt.Errorf("handling: %w", Permanent(base))
	if !IsPermanent(err) || !errors.Is(err, base) {
		t.Fatalf("wrapped permanent error lost: %v", err)
	}
	if IsPermanent(base) {
		t.Fatal("plain error reported permanent")
	}
}
