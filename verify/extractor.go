package verify

import (
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/formbt/ndi-gateway/core"
)

// Attribute name aliases observed across provider payload variants.
// First matching alias wins.
var (
	nameAliases  = []string{"Full Name", "full_name", "name"}
	idAliases    = []string{"ID Number", "id_number", "idNumber"}
	emailAliases = []string{"Email", "email"}
)

var (
	numericRe = regexp.MustCompile(`^\d+$`)
	nameRe    = regexp.MustCompile(`^[a-zA-Z\s]+$`)
)

// extractor is one shape matcher. Matchers are independent across
// attributes: one may supply the name while a later one supplies the ID.
type extractor func(root gjson.Result) core.IdentityAttributes

// Shape matchers in priority order. Newer provider formats first.
var extractors = []extractor{
	revealedAttrsAt("data.data.requested_presentation.revealed_attrs"),
	revealedAttrsAt("data.requested_presentation.revealed_attrs"),
	fromCredentials,
	fromFlatAttributes,
	fromIndyProof,
}

// Extract recovers identity attributes from a raw proof payload, best
// effort. Each matcher is tried in order and fills only attributes still
// missing; attributes no shape revealed come back empty. The un-keyed
// legacy fallback runs only when every keyed matcher came up empty.
func Extract(payload []byte) core.IdentityAttributes {
	var attrs core.IdentityAttributes
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return attrs
	}

	root := gjson.ParseBytes(payload)
	for _, match := range extractors {
		merge(&attrs, match(root))
		if attrs.FullName != "" && attrs.IDNumber != "" && attrs.Email != "" {
			break
		}
	}

	if attrs.FullName == "" && attrs.IDNumber == "" {
		merge(&attrs, unkeyedFallback(root))
	}

	return attrs
}

func merge(dst *core.IdentityAttributes, src core.IdentityAttributes) {
	if dst.FullName == "" {
		dst.FullName = src.FullName
	}
	if dst.IDNumber == "" {
		dst.IDNumber = src.IDNumber
	}
	if dst.Email == "" {
		dst.Email = src.Email
	}
}

// revealedAttrsAt matches the requested-presentation format where each
// human-readable attribute name maps to a list of {value, identifier_index}
// records. The first element's value is taken.
func revealedAttrsAt(path string) extractor {
	return func(root gjson.Result) core.IdentityAttributes {
		revealed := root.Get(path)
		if !revealed.IsObject() {
			return core.IdentityAttributes{}
		}

		pick := func(aliases []string) string {
			for _, alias := range aliases {
				v := revealed.Get(alias + ".0.value")
				if v.Type == gjson.String && v.Str != "" {
					return v.Str
				}
			}
			return ""
		}

		return core.IdentityAttributes{
			FullName: pick(nameAliases),
			IDNumber: pick(idAliases),
			Email:    pick(emailAliases),
		}
	}
}

// fromCredentials matches a flat credentials list where each credential
// carries an attributes map keyed by alias.
func fromCredentials(root gjson.Result) core.IdentityAttributes {
	creds := root.Get("data.credentials")
	if !creds.IsArray() {
		return core.IdentityAttributes{}
	}

	var attrs core.IdentityAttributes
	creds.ForEach(func(_, cred gjson.Result) bool {
		merge(&attrs, aliasValues(cred.Get("attributes")))
		return attrs.FullName == "" || attrs.IDNumber == ""
	})
	return attrs
}

// fromFlatAttributes matches an attributes map at the payload data root.
func fromFlatAttributes(root gjson.Result) core.IdentityAttributes {
	return aliasValues(root.Get("data.attributes"))
}

// fromIndyProof matches the legacy proof-exchange format: each entry under
// requested_proof.revealed_attrs is itself probed by alias.
func fromIndyProof(root gjson.Result) core.IdentityAttributes {
	revealed := root.Get("proof.requested_proof.revealed_attrs")
	if !revealed.IsObject() {
		return core.IdentityAttributes{}
	}

	var attrs core.IdentityAttributes
	revealed.ForEach(func(_, attr gjson.Result) bool {
		merge(&attrs, aliasValues(attr))
		return attrs.FullName == "" || attrs.IDNumber == ""
	})
	return attrs
}

// aliasValues reads direct string values out of an attribute object using
// the alias sets.
func aliasValues(obj gjson.Result) core.IdentityAttributes {
	if !obj.IsObject() {
		return core.IdentityAttributes{}
	}

	pick := func(aliases []string) string {
		for _, alias := range aliases {
			v := obj.Get(alias)
			if v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
		return ""
	}

	return core.IdentityAttributes{
		FullName: pick(nameAliases),
		IDNumber: pick(idAliases),
		Email:    pick(emailAliases),
	}
}

// unkeyedFallback handles the legacy format where revealed attributes carry
// only a raw value and no usable key. An all-digit value of length >= 3 is
// taken as the ID number, a letters-and-spaces value longer than 2 as the
// name. Weak corroboration only; it never overrides a keyed match.
func unkeyedFallback(root gjson.Result) core.IdentityAttributes {
	var attrs core.IdentityAttributes
	for _, path := range []string{
		"data.data.requested_presentation.revealed_attrs",
		"data.requested_presentation.revealed_attrs",
	} {
		root.Get(path).ForEach(func(_, attr gjson.Result) bool {
			raw := attr.Get("raw")
			if raw.Type != gjson.String || raw.Str == "" {
				return true
			}
			switch {
			case attrs.IDNumber == "" && len(raw.Str) >= 3 && numericRe.MatchString(raw.Str):
				attrs.IDNumber = raw.Str
			case attrs.FullName == "" && len(raw.Str) > 2 && nameRe.MatchString(raw.Str):
				attrs.FullName = raw.Str
			}
			return attrs.FullName == "" || attrs.IDNumber == ""
		})
	}
	return attrs
}
