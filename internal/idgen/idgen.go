// Package idgen mints the random identifiers used across the service.
// Every entity type carries its own prefix so an ID pasted into a log
// search or a support ticket names its table at a glance.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Entity prefixes. Declared here so no two packages can mint colliding
// ID namespaces.
const (
	PrefixPayment      = "pay_"
	PrefixWithdrawal   = "wd_"
	PrefixContract     = "ct_"
	PrefixSubscription = "sub_"
	PrefixWebhookEvent = "wh_"
	PrefixNotification = "ntf_"
	PrefixLedgerEntry  = "ent_"
)

const randomBytes = 12

// New generates a UUID-like random ID (32 hex chars with dashes).
// Format: xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
func New() string {
	b := read(16)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}

// WithPrefix generates a random ID in the given namespace, e.g.
// WithPrefix(PrefixPayment) yields "pay_" + 24 hex chars.
func WithPrefix(prefix string) string {
	return prefix + hex.EncodeToString(read(randomBytes))
}

// Matches reports whether id was minted by WithPrefix in the given
// namespace: the right prefix followed by the right amount of hex.
func Matches(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok || len(rest) != randomBytes*2 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

// Hex generates a random hex string of the given byte length.
func Hex(numBytes int) string {
	return hex.EncodeToString(read(numBytes))
}

func read(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return b
}
