// Package cache stores model responses so interrupted inference runs can
// resume without re-querying provisions that already completed.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache is the checkpoint store interface
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// ResponseKey derives the checkpoint key for one provision under one
// model. Keys are content-addressed so a prompt or model change never
// replays a stale response.
func ResponseKey(modelAlias, ruleID, prompt string) string {
	h := sha256.New()
	h.Write([]byte(modelAlias))
	h.Write([]byte{0})
	h.Write([]byte(ruleID))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return "normbench:v1:" + hex.EncodeToString(h.Sum(nil))
}
