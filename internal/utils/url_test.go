package utils

import "testing"

func TestNormalizeHost(t *testing.T) {
	host, err := NormalizeHost("https://WWW.Example.com/path?x=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "example.com" {
		t.Fatalf("unexpected host: %s", host)
	}
	host, err = NormalizeHost("bücher.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "xn--bcher-kva.example" {
		t.Fatalf("expected punycode host, got %s", host)
	}
}

func TestBlockedDomain(t *testing.T) {
	blocked := DomainSet([]string{"bad.com", " https://evil.org "})
	if domain, ok := BlockedDomain("see https://cdn.bad.com/x now", blocked); !ok || domain != "bad.com" {
		t.Fatalf("expected subdomain match, got %q %v", domain, ok)
	}
	if _, ok := BlockedDomain("http://evil.org", blocked); !ok {
		t.Fatalf("expected exact match")
	}
	if _, ok := BlockedDomain("https://notbad.com", blocked); ok {
		t.Fatalf("unexpected match on unrelated domain")
	}
	if _, ok := BlockedDomain("https://bad.com", nil); ok {
		t.Fatalf("empty set must not match")
	}
}
