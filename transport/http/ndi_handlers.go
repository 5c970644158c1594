package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/formbt/ndi-gateway/adapters/qr"
	"github.com/formbt/ndi-gateway/core"
	"github.com/formbt/ndi-gateway/ports"
	"github.com/formbt/ndi-gateway/service"
	"github.com/formbt/ndi-gateway/verify"
)

// latestProofTTL bounds how long a webhook payload stays available to the
// legacy polling endpoint.
const latestProofTTL = 30 * time.Minute

// NDIHandlers contains HTTP handlers for the NDI verification endpoints.
type NDIHandlers struct {
	issuer       ports.ProofIssuer
	proofs       ports.ProofStore
	registration *service.RegistrationService
	binder       *service.SessionBinder
	bus          ports.EventBus
}

// NewNDIHandlers creates the NDI endpoint handlers.
func NewNDIHandlers(
	issuer ports.ProofIssuer,
	proofs ports.ProofStore,
	registration *service.RegistrationService,
	binder *service.SessionBinder,
	bus ports.EventBus,
) *NDIHandlers {
	return &NDIHandlers{
		issuer:       issuer,
		proofs:       proofs,
		registration: registration,
		binder:       binder,
		bus:          bus,
	}
}

// ProofRequest issues a fresh proof challenge and returns the deep link
// together with a scannable QR image URL.
func (h *NDIHandlers) ProofRequest(c *gin.Context) {
	challenge, err := h.issuer.Issue(c.Request.Context())
	if err != nil {
		log.Printf("ndi: proof request failed: %v", err)
		status := http.StatusBadGateway
		if errors.Is(err, core.ErrInvalidProviderResponse) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"success": false, "message": "Failed to create proof request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"url":       challenge.Reference,
		"threadId":  challenge.ThreadID,
		"qrCodeUrl": qr.PresentationURI(challenge.Reference),
	})
}

// ProofStatus passes a proof-status lookup through to the provider.
func (h *NDIHandlers) ProofStatus(c *gin.Context) {
	threadID := c.Param("threadId")

	body, err := h.issuer.Status(c.Request.Context(), threadID)
	if err != nil {
		log.Printf("ndi: proof status lookup failed for thread %s: %v", threadID, err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Failed to check proof status"})
		return
	}

	c.Data(http.StatusOK, "application/json", body)
}

// Register creates an account from verified (or manually entered)
// registration data and logs the new user in.
func (h *NDIHandlers) Register(c *gin.Context) {
	var req struct {
		FullName         string          `json:"fullName" binding:"required"`
		Email            string          `json:"email"`
		Username         string          `json:"username"`
		VerificationData json.RawMessage `json:"verificationData"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request"})
		return
	}

	username := req.Username
	if username == "" {
		username = service.GenerateUsername(req.FullName)
	}
	email := req.Email
	if email == "" {
		email = service.PlaceholderEmail(username)
	}

	user, err := h.registration.Register(c.Request.Context(), service.RegistrationRequest{
		FullName:            req.FullName,
		Email:               email,
		Username:            username,
		VerificationPayload: req.VerificationData,
	})
	if err != nil {
		switch {
		case errors.Is(err, core.ErrRegistrationBlocked):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Registration is not available during authentication"})
		case errors.Is(err, core.ErrUserExists):
			c.JSON(http.StatusConflict, gin.H{"success": false, "message": "User with this email or username already exists"})
		case errors.Is(err, core.ErrInvalidRegistration):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		default:
			log.Printf("ndi: registration failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Registration failed"})
		}
		return
	}

	bound, err := h.binder.Login(c.Request.Context(), user)
	if err != nil {
		log.Printf("ndi: session bind after registration failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Registration succeeded but login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user": gin.H{
			"id":            bound.User.ID,
			"username":      bound.User.Username,
			"email":         bound.User.Email,
			"fullName":      bound.User.FullName,
			"isNdiVerified": bound.User.NDIVerified,
		},
		"accessToken":  bound.AccessToken,
		"refreshToken": bound.RefreshToken,
	})
}

// Webhook receives the provider's verification callbacks. The payload is
// stored for polling, and broadcast on the event bus only when the outcome
// actually validated. The provider always gets a 200 so it never retries
// into a storm.
func (h *NDIHandlers) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	threadID := webhookThreadID(payload)
	if threadID == "" {
		log.Printf("ndi: webhook payload carries no thread id, dropping")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	ctx := c.Request.Context()
	if err := h.proofs.SaveLatest(ctx, threadID, payload, latestProofTTL); err != nil {
		log.Printf("ndi: failed to store webhook payload for thread %s: %v", threadID, err)
	}

	outcome := verify.Validate(payload)
	if !outcome.Validated {
		log.Printf("ndi: webhook for thread %s not validated: %s", threadID, outcome.Reason)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	ev := core.ChannelEvent{
		Kind:     core.EventVerification,
		ThreadID: threadID,
		Payload:  payload,
	}
	if err := h.bus.Publish(ctx, ev); err != nil {
		log.Printf("ndi: failed to broadcast verification for thread %s: %v", threadID, err)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// LatestProof returns the most recent webhook payload for a thread. Kept
// for clients that poll instead of holding an event stream open.
func (h *NDIHandlers) LatestProof(c *gin.Context) {
	threadID := c.Query("threadId")
	if threadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "threadId is required"})
		return
	}

	payload, err := h.proofs.Latest(c.Request.Context(), threadID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "No proof received yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to load proof"})
		return
	}

	c.Data(http.StatusOK, "application/json", payload)
}

// webhookThreadID digs the correlation token out of the callback payload.
// Providers have shipped it under several names.
func webhookThreadID(payload []byte) string {
	for _, path := range []string{"thid", "threadId", "data.thid", "data.threadId"} {
		if res := gjson.GetBytes(payload, path); res.Exists() && res.String() != "" {
			return res.String()
		}
	}
	return ""
}
