package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterminism(t *testing.T) {
	v := map[string]any{"attr": "mode", "value": Set{Number(1), Number(2)}}

	a, err := Fingerprint(DomainClause, v)
	require.NoError(t, err)
	b, err := Fingerprint(DomainClause, v)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64, "SHA-256 hex is 64 characters")
}

func TestFingerprintKeyOrderIndependent(t *testing.T) {
	a := MustFingerprint(DomainExpr, map[string]any{"a": 1, "b": 2})
	b := MustFingerprint(DomainExpr, map[string]any{"b": 2, "a": 1})
	assert.Equal(t, a, b)
}

func TestFingerprintDomainSeparation(t *testing.T) {
	v := String("x")
	assert.NotEqual(t, MustFingerprint(DomainExpr, v), MustFingerprint(DomainClause, v))
}

func TestFingerprintChangesWithInput(t *testing.T) {
	assert.NotEqual(t,
		MustFingerprint(DomainExpr, Number(1)),
		MustFingerprint(DomainExpr, Number(2)))
}

func TestFingerprintError(t *testing.T) {
	_, err := Fingerprint(DomainExpr, Number(math.Inf(1)))
	assert.Error(t, err)
	assert.Panics(t, func() { MustFingerprint(DomainExpr, Number(math.NaN())) })
}
