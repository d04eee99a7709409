// Package id generates opaque handles for engine-owned objects.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind tells what a handle names. It is the handle's prefix.
type Kind string

const (
	KindFilterGroup Kind = "fg"
	KindListGroup   Kind = "lg"
)

const randomLen = 26

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// New returns "<kind>_" followed by a random UUIDv4 encoded as 26 lowercase
// base32 characters.
func New(kind Kind) (string, error) {
	if !known(kind) {
		return "", fmt.Errorf("unknown handle kind %q", kind)
	}
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return string(kind) + "_" + strings.ToLower(encoding.EncodeToString(value[:])), nil
}

// KindOf returns the kind of a well-formed handle.
func KindOf(handle string) (Kind, bool) {
	prefix, random, ok := strings.Cut(handle, "_")
	if !ok || len(random) != randomLen || !known(Kind(prefix)) {
		return "", false
	}
	if _, err := encoding.DecodeString(strings.ToUpper(random)); err != nil {
		return "", false
	}
	return Kind(prefix), true
}

func known(kind Kind) bool {
	return kind == KindFilterGroup || kind == KindListGroup
}
