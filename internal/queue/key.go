package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultBucket is the dedup window for idempotency keys
const DefaultBucket = time.Minute

// TimeBucket floors t into the default one-minute dedup window. Callers widen
// or narrow the window by passing their own bucket to IdempotencyKey.
func TimeBucket(t time.Time) int64 {
	return t.Unix() / int64(DefaultBucket.Seconds())
}

// IdempotencyKey builds the deterministic 32-hex-char fingerprint of a logical
// order intent. The same value is echoed to the broker as the client order id,
// making the broker a secondary dedup authority.
func IdempotencyKey(strategyID, symbol, side, signalHash string, timeBucket int64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d", strategyID, symbol, side, signalHash, timeBucket)))
	return hex.EncodeToString(h[:])[:32]
}
