package core

// ProofValidated is the single sentinel value that constitutes a passed
// identity check. Every other verification_result value is a rejection.
const ProofValidated = "ProofValidated"

// VerificationOutcome is the pass/fail decision for one verification payload.
// Reason holds the observed verification_result for diagnostics when the
// outcome is not validated; it is logged, never shown to end users.
type VerificationOutcome struct {
	Validated bool
	Reason    string
}

// IdentityAttributes are the best-effort attributes recovered from a proof
// payload. Empty fields mean the payload did not reveal them; they are never
// treated as verified identity on their own.
type IdentityAttributes struct {
	FullName string
	IDNumber string
	Email    string
}

// Complete reports whether enough was recovered to register without manual
// completion.
func (a IdentityAttributes) Complete() bool {
	return a.FullName != "" && a.IDNumber != ""
}
