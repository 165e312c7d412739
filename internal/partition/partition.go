// Package partition derives the storage key that isolates one owner's
// memories in one scope from every other (owner, scope) pair.
package partition

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rcliao/tiered-memory/internal/model"
)

var (
	// ErrEmptyOwner is returned when no owner id is supplied.
	ErrEmptyOwner = errors.New("owner id is required")
	// ErrMalformedKey is returned by Parse for keys Key could not have produced.
	ErrMalformedKey = errors.New("malformed partition key")
)

// Key returns "<scope>/<escaped owner>". Scope names never contain '/' and
// path escaping is injective, so distinct pairs never share a key. The key
// depends only on its inputs and is stable across restarts.
func Key(ownerID string, scope model.Scope) (string, error) {
	if ownerID == "" {
		return "", ErrEmptyOwner
	}
	if !scope.Valid() {
		return "", fmt.Errorf("%w: scope %q", model.ErrInvalidValue, scope)
	}
	return string(scope) + "/" + url.PathEscape(ownerID), nil
}

// MustKey is Key for callers that have already validated their inputs.
func MustKey(ownerID string, scope model.Scope) string {
	k, err := Key(ownerID, scope)
	if err != nil {
		panic(err)
	}
	return k
}

// Parse splits a key back into its owner and scope.
func Parse(key string) (string, model.Scope, error) {
	sc, esc, ok := strings.Cut(key, "/")
	if !ok || esc == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	scope := model.Scope(sc)
	if !scope.Valid() {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	owner, err := url.PathUnescape(esc)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q: %v", ErrMalformedKey, key, err)
	}
	return owner, scope, nil
}
