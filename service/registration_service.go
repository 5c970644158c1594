package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formbt/ndi-gateway/core"
	"github.com/formbt/ndi-gateway/ports"
	"github.com/formbt/ndi-gateway/verify"
)

var (
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_\-]{3,20}$`)
)

// RegistrationRequest carries the data needed to create an account. The raw
// verification payload travels with it and is stored on the user record.
type RegistrationRequest struct {
	FullName            string
	Email               string
	Username            string
	VerificationPayload []byte
}

// RegistrationService creates user accounts from NDI registrations.
type RegistrationService struct {
	users ports.UserStore
	guard *RegistrationGuard
}

// NewRegistrationService creates a registration service. The guard is shared
// with the authenticate flow; every registration entry point checks it.
func NewRegistrationService(users ports.UserStore, guard *RegistrationGuard) *RegistrationService {
	return &RegistrationService{users: users, guard: guard}
}

// Register validates the request and creates the user. It refuses with
// core.ErrRegistrationBlocked while an authenticate attempt is in progress;
// callers must surface that error distinctly, never fold it into a generic
// failure.
func (s *RegistrationService) Register(ctx context.Context, req RegistrationRequest) (core.User, error) {
	if s.guard.Engaged() {
		return core.User{}, core.ErrRegistrationBlocked
	}

	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)

	if err := validateRegistration(req); err != nil {
		return core.User{}, err
	}

	exists, err := s.users.Exists(ctx, req.Email, req.Username)
	if err != nil {
		return core.User{}, fmt.Errorf("failed to check existing users: %w", err)
	}
	if exists {
		return core.User{}, core.ErrUserExists
	}

	payload := req.VerificationPayload
	if len(payload) == 0 {
		payload = manualEntryPayload()
	}
	outcome := verify.Validate(payload)

	now := time.Now()
	user := core.User{
		ID:                  uuid.New().String(),
		Username:            req.Username,
		Email:               req.Email,
		FullName:            req.FullName,
		NDIVerified:         outcome.Validated,
		VerificationPayload: payload,
		VerifiedAt:          now,
		CreatedAt:           now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return core.User{}, err
	}
	return user, nil
}

func validateRegistration(req RegistrationRequest) error {
	if req.FullName == "" {
		return fmt.Errorf("%w: full name is required", core.ErrInvalidRegistration)
	}
	if !emailRe.MatchString(req.Email) {
		return fmt.Errorf("%w: invalid email address", core.ErrInvalidRegistration)
	}
	if !usernameRe.MatchString(req.Username) {
		return fmt.Errorf("%w: username must be 3-20 characters of letters, numbers, hyphens, underscores", core.ErrInvalidRegistration)
	}
	return nil
}

// GenerateUsername derives a username from a full name: lowercased,
// specials stripped, spaces joined with underscores, capped at 20 chars.
func GenerateUsername(fullName string) string {
	lowered := strings.ToLower(fullName)

	var cleaned strings.Builder
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			cleaned.WriteRune(r)
		}
	}

	parts := strings.Fields(cleaned.String())
	username := strings.Join(parts, "_")
	if len(username) > 20 {
		username = username[:20]
	}
	return username
}

// PlaceholderEmail fills in a provider-domain address when a registration
// arrives without one.
func PlaceholderEmail(username string) string {
	return username + "@ndi.bt"
}

// manualEntryPayload marks a registration that arrived without verification
// data. Its verification_result is deliberately not the pass sentinel.
func manualEntryPayload() []byte {
	payload, _ := json.Marshal(map[string]any{
		"type":                "manual-registration",
		"verification_result": "ManualEntry",
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"source":   "manual-entry",
			"verified": false,
		},
	})
	return payload
}
