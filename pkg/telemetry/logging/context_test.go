package logging

import (
	"context"
	"testing"
)

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()

	if GetRequestID(ctx) != "" || GetClientID(ctx) != "" || GetPrincipal(ctx) != "" {
		t.Error("Expected empty values on a bare context")
	}

	ctx = WithRequestID(ctx, "r1")
	ctx = WithClientID(ctx, "user:1")
	ctx = WithPrincipal(ctx, "1")

	if GetRequestID(ctx) != "r1" {
		t.Errorf("Expected r1, got %s", GetRequestID(ctx))
	}
	if GetClientID(ctx) != "user:1" {
		t.Errorf("Expected user:1, got %s", GetClientID(ctx))
	}
	if GetPrincipal(ctx) != "1" {
		t.Errorf("Expected 1, got %s", GetPrincipal(ctx))
	}

	if n := len(contextAttrs(ctx)); n != 3 {
		t.Errorf("Expected 3 context attributes, got %d", n)
	}
}
