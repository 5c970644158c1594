package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbt/ndi-gateway/adapters/store"
	"github.com/formbt/ndi-gateway/core"
)

const validatedRegistrationPayload = `{
	"verification_result": "ProofValidated",
	"data": {
		"requested_presentation": {
			"revealed_attrs": {
				"Full Name": [{"value": "Dorji Sonam"}],
				"ID Number": [{"value": "11706003121"}]
			}
		}
	}
}`

func newRegistrationFixture() (*RegistrationService, *RegistrationGuard) {
	guard := NewRegistrationGuard()
	return NewRegistrationService(store.NewMemoryStore(), guard), guard
}

func TestGenerateUsername(t *testing.T) {
	cases := []struct {
		fullName string
		want     string
	}{
		{"Dorji Sonam", "dorji_sonam"},
		{"Tshering-Wangchuk Jr.", "tsheringwangchuk_jr"},
		{"  Pema   Lhamo  ", "pema_lhamo"},
		{"Sonam Wangdi Tshering Dorji", "sonam_wangdi_tsherin"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, GenerateUsername(tc.fullName), "full name %q", tc.fullName)
	}
}

func TestPlaceholderEmail(t *testing.T) {
	assert.Equal(t, "dorji_sonam@ndi.bt", PlaceholderEmail("dorji_sonam"))
}

func TestRegisterVerifiedUser(t *testing.T) {
	svc, _ := newRegistrationFixture()

	user, err := svc.Register(context.Background(), RegistrationRequest{
		FullName:            "Dorji Sonam",
		Email:               "dorji@example.bt",
		Username:            "dorji_sonam",
		VerificationPayload: []byte(validatedRegistrationPayload),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "Dorji Sonam", user.FullName)
	assert.True(t, user.NDIVerified)
	assert.JSONEq(t, validatedRegistrationPayload, string(user.VerificationPayload))
	assert.False(t, user.CreatedAt.IsZero())
}

func TestRegisterWithoutVerificationData(t *testing.T) {
	svc, _ := newRegistrationFixture()

	user, err := svc.Register(context.Background(), RegistrationRequest{
		FullName: "Dorji Sonam",
		Email:    "dorji@example.bt",
		Username: "dorji_sonam",
	})
	require.NoError(t, err)
	assert.False(t, user.NDIVerified, "manual entry must not count as verified")

	// The account still carries evidence of how it was created
	assert.Contains(t, string(user.VerificationPayload), "ManualEntry")
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newRegistrationFixture()
	ctx := context.Background()

	cases := []RegistrationRequest{
		{FullName: "", Email: "a@b.bt", Username: "valid_name"},
		{FullName: "Dorji", Email: "not-an-email", Username: "valid_name"},
		{FullName: "Dorji", Email: "a@b.bt", Username: "ab"},
		{FullName: "Dorji", Email: "a@b.bt", Username: "has spaces"},
		{FullName: "Dorji", Email: "a@b.bt", Username: "way_too_long_username_for_the_limit"},
	}
	for _, req := range cases {
		_, err := svc.Register(ctx, req)
		assert.ErrorIs(t, err, core.ErrInvalidRegistration, "request %+v", req)
	}
}

func TestRegisterDuplicateUser(t *testing.T) {
	svc, _ := newRegistrationFixture()
	ctx := context.Background()

	req := RegistrationRequest{FullName: "Dorji Sonam", Email: "dorji@example.bt", Username: "dorji_sonam"}
	_, err := svc.Register(ctx, req)
	require.NoError(t, err)

	_, err = svc.Register(ctx, req)
	assert.ErrorIs(t, err, core.ErrUserExists)
}

func TestRegisterBlockedWhileGuardEngaged(t *testing.T) {
	svc, guard := newRegistrationFixture()
	ctx := context.Background()

	err := guard.During(func() error {
		_, err := svc.Register(ctx, RegistrationRequest{
			FullName: "Dorji Sonam",
			Email:    "dorji@example.bt",
			Username: "dorji_sonam",
		})
		return err
	})
	assert.ErrorIs(t, err, core.ErrRegistrationBlocked)

	// Cleared guard lets the same registration through
	_, err = svc.Register(ctx, RegistrationRequest{
		FullName: "Dorji Sonam",
		Email:    "dorji@example.bt",
		Username: "dorji_sonam",
	})
	require.NoError(t, err)
}
