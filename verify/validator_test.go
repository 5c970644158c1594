package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbt/ndi-gateway/core"
)

func TestValidateAcceptsTopLevelResult(t *testing.T) {
	outcome := Validate([]byte(`{"verification_result":"ProofValidated","thid":"t-1"}`))
	require.True(t, outcome.Validated)
	assert.Empty(t, outcome.Reason)
}

func TestValidateAcceptsNestedResult(t *testing.T) {
	outcome := Validate([]byte(`{"data":{"verification_result":"ProofValidated"}}`))
	require.True(t, outcome.Validated)
}

func TestValidateTopLevelResultDecides(t *testing.T) {
	// A present top-level value wins even when the nested one would pass
	payload := []byte(`{"verification_result":"ProofInvalid","data":{"verification_result":"ProofValidated"}}`)
	outcome := Validate(payload)
	require.False(t, outcome.Validated)
	assert.Contains(t, outcome.Reason, "ProofInvalid")
}

func TestValidateEmptyTopLevelFallsThrough(t *testing.T) {
	payload := []byte(`{"verification_result":"","data":{"verification_result":"ProofValidated"}}`)
	outcome := Validate(payload)
	require.True(t, outcome.Validated)
}

func TestValidateRejectsNearMisses(t *testing.T) {
	for _, value := range []string{
		"proofvalidated",
		"ProofValidated ",
		"ProofInvalid",
		"PresentationReceived",
	} {
		outcome := Validate([]byte(`{"verification_result":"` + value + `"}`))
		require.False(t, outcome.Validated, "value %q must not validate", value)
		assert.Contains(t, outcome.Reason, core.ProofValidated)
	}
}

func TestValidateRejectsNonStringResult(t *testing.T) {
	outcome := Validate([]byte(`{"verification_result":true}`))
	require.False(t, outcome.Validated)
}

func TestValidateMissingResult(t *testing.T) {
	outcome := Validate([]byte(`{"thid":"t-1","data":{}}`))
	require.False(t, outcome.Validated)
	assert.Equal(t, "verification_result missing from payload", outcome.Reason)
}

func TestValidateMalformedPayload(t *testing.T) {
	for _, payload := range [][]byte{nil, {}, []byte(`{"verification_result":`), []byte("not json")} {
		outcome := Validate(payload)
		require.False(t, outcome.Validated)
		assert.Equal(t, "malformed verification payload", outcome.Reason)
	}
}
