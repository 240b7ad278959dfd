package env

import "testing"

func TestGet(t *testing.T) {
	t.Setenv("WHOLESALE_TEST_VALUE", "set")
	if got := Get("WHOLESALE_TEST_VALUE", "fallback"); got != "set" {
		t.Fatalf("expected set, got %q", got)
	}
	t.Setenv("WHOLESALE_TEST_VALUE", "")
	if got := Get("WHOLESALE_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
