package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithPrefix_MintsInNamespace(t *testing.T) {
	id := WithPrefix(PrefixPayment)
	assert.Len(t, id, len(PrefixPayment)+24)
	assert.True(t, Matches(id, PrefixPayment))
	assert.False(t, Matches(id, PrefixWithdrawal))
}

func TestWithPrefix_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := WithPrefix(PrefixWebhookEvent)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestMatches_RejectsMalformedIDs(t *testing.T) {
	assert.False(t, Matches("pay_", PrefixPayment))
	assert.False(t, Matches("pay_short", PrefixPayment))
	assert.False(t, Matches("pay_zzzzzzzzzzzzzzzzzzzzzzzz", PrefixPayment))
	assert.False(t, Matches("", PrefixPayment))
}

func TestNew_UUIDShape(t *testing.T) {
	id := New()
	assert.Len(t, id, 36)
	assert.Equal(t, byte('-'), id[8])
	assert.Equal(t, byte('-'), id[13])
}
