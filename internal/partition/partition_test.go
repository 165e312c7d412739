package partition

import (
	"errors"
	"testing"

	"github.com/rcliao/tiered-memory/internal/model"
)

func TestKeyDeterministic(t *testing.T) {
	a, err := Key("user-1", model.ScopePersonal)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	b, _ := Key("user-1", model.ScopePersonal)
	if a != b {
		t.Errorf("expected same key, got %q and %q", a, b)
	}
	if a != "personal/user-1" {
		t.Errorf("expected 'personal/user-1', got %q", a)
	}
}

func TestKeyInjective(t *testing.T) {
	owners := []string{"a", "b", "a/b", "a%2Fb", "personal", "a b", "ä", "team/a", "/", "%"}
	seen := map[string]string{}
	for _, o := range owners {
		for _, s := range model.AllScopes() {
			k, err := Key(o, s)
			if err != nil {
				t.Fatalf("key(%q, %s): %v", o, s, err)
			}
			pair := string(s) + "|" + o
			if prev, ok := seen[k]; ok {
				t.Fatalf("collision: %q and %q both map to %q", prev, pair, k)
			}
			seen[k] = pair
		}
	}
}

func TestParseInvertsKey(t *testing.T) {
	for _, o := range []string{"u1", "a/b", "a%2Fb", "with space"} {
		for _, s := range model.AllScopes() {
			k := MustKey(o, s)
			owner, scope, err := Parse(k)
			if err != nil {
				t.Fatalf("parse %q: %v", k, err)
			}
			if owner != o || scope != s {
				t.Errorf("expected (%q, %s), got (%q, %s)", o, s, owner, scope)
			}
		}
	}
}

func TestKeyRejectsBadInput(t *testing.T) {
	if _, err := Key("", model.ScopePersonal); !errors.Is(err, ErrEmptyOwner) {
		t.Errorf("expected ErrEmptyOwner, got %v", err)
	}
	if _, err := Key("u", model.Scope("galaxy")); !errors.Is(err, model.ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, k := range []string{"", "personal", "personal/", "galaxy/u1", "team/%zz"} {
		if _, _, err := Parse(k); !errors.Is(err, ErrMalformedKey) {
			t.Errorf("parse %q: expected ErrMalformedKey, got %v", k, err)
		}
	}
}
