// Package verify decides verification outcomes and recovers identity
// attributes from provider proof payloads. Provider payloads are untyped and
// structurally unstable, so everything here works on raw JSON and is total:
// malformed input yields a failed outcome or empty attributes, never a panic.
package verify

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/formbt/ndi-gateway/core"
)

// resultPaths are the known nesting depths for verification_result. Providers
// have shipped both; any new depth is an extension of this list, not a change
// to the acceptance rule.
var resultPaths = []string{
	"verification_result",
	"data.verification_result",
}

// Validate decides pass/fail for one raw verification payload. The only pass
// is exact string equality with core.ProofValidated; a different value, a
// missing field, or malformed JSON all fail, with the observed value recorded
// in Reason for diagnostics.
func Validate(payload []byte) core.VerificationOutcome {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return core.VerificationOutcome{Reason: "malformed verification payload"}
	}

	for _, path := range resultPaths {
		res := gjson.GetBytes(payload, path)
		if !res.Exists() || res.String() == "" {
			continue
		}

		if res.Type == gjson.String && res.Str == core.ProofValidated {
			return core.VerificationOutcome{Validated: true}
		}

		return core.VerificationOutcome{
			Reason: fmt.Sprintf("verification_result is %q, want %q", res.String(), core.ProofValidated),
		}
	}

	return core.VerificationOutcome{Reason: "verification_result missing from payload"}
}
