package trace

import (
	"context"
	"testing"
)

func TestEnsure(t *testing.T) {
	ctx := Ensure(context.Background(), "")
	minted := ID(ctx)
	if minted == "" {
		t.Fatal("Ensure did not mint an id")
	}
	if got := ID(Ensure(ctx, "")); got != minted {
		t.Fatalf("Ensure replaced existing id %s with %s", minted, got)
	}
	if got := ID(Ensure(ctx, "given")); got != "given" {
		t.Fatalf("id=%s want given", got)
	}
	if ID(context.Background()) != "" {
		t.Fatal("background context has a trace id")
	}
}
