package cache

import (
	"strings"
	"testing"
)

func TestKey(t *testing.T) {
	a := Key("https://public-api.wordpress.com/rest/v1.1/sites/1/posts/")
	b := Key("https://public-api.wordpress.com/rest/v1.1/sites/2/posts/")
	again := Key("https://public-api.wordpress.com/rest/v1.1/sites/1/posts/")

	if a == b {
		t.Error("different endpoints should produce different keys")
	}
	if a != again {
		t.Error("same endpoint should produce the same key")
	}
	if !strings.HasPrefix(a, KeyPrefix) {
		t.Errorf("key %q missing prefix %q", a, KeyPrefix)
	}
	if len(a) != len(KeyPrefix)+keyHashLen {
		t.Errorf("key length = %d, want %d", len(a), len(KeyPrefix)+keyHashLen)
	}
}

func TestKey_MatchesMD5Prefix(t *testing.T) {
	// md5("") = d41d8cd98f00b204e9800998ecf8427e
	if got, want := Key(""), KeyPrefix+"d41d8cd98f00b204e9800"; got != want {
		t.Errorf("Key(\"\") = %q, want %q", got, want)
	}
}
