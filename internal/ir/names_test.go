package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Gold Ring", NormalizeName("  Gold   Ring \t"))
	assert.Equal(t, "Caf\u00e9", NormalizeName("Cafe\u0301"))
	assert.Equal(t, NameKey("GOLD ring"), NameKey(" gold  Ring"))
}

func TestScope(t *testing.T) {
	assert.True(t, Scope{TenantID: "t", LocationID: "l"}.Valid())
	assert.False(t, Scope{TenantID: "t"}.Valid())
	assert.Equal(t, "t/l", Scope{TenantID: "t", LocationID: "l"}.String())
}
