package models

import (
	"fmt"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	PublicIDLength   = 32
	publicIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// NewPublicID returns a random alphanumeric id for diagrams and folders.
// These ids appear in URLs, so they must not be guessable.
func NewPublicID() (string, error) {
	id, err := gonanoid.Generate(publicIDAlphabet, PublicIDLength)
	if err != nil {
		return "", fmt.Errorf("generate public id: %w", err)
	}
	return id, nil
}

var (
	lastCodeVersion atomic.Int64
	nowMillis       = func() int64 { return time.Now().UnixMilli() }
)

// NewCodeVersion returns a millisecond wall-clock stamp. Stamps handed out by
// one process are strictly increasing even when the clock stalls or steps
// back; across processes they are only best-effort unique.
func NewCodeVersion() int64 {
	for {
		last := lastCodeVersion.Load()
		next := nowMillis()
		if next <= last {
			next = last + 1
		}
		if lastCodeVersion.CompareAndSwap(last, next) {
			return next
		}
	}
}
