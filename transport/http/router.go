package http

import (
	"github.com/gin-gonic/gin"

	"github.com/formbt/ndi-gateway/channel"
	"github.com/formbt/ndi-gateway/ports"
	"github.com/formbt/ndi-gateway/service"
)

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	Issuer       ports.ProofIssuer
	Proofs       ports.ProofStore
	Registration *service.RegistrationService
	Binder       *service.SessionBinder
	Auth         *service.AuthService
	Users        ports.UserStore
	Bus          ports.EventBus
	Hub          *channel.Hub
}

// SetupRouter sets up the Gin router
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.Default()

	ndi := NewNDIHandlers(deps.Issuer, deps.Proofs, deps.Registration, deps.Binder, deps.Bus)
	sse := NewSSEHandler(deps.Hub)
	auth := NewAuthHandlers(deps.Auth, deps.Users)

	// Session routes
	session := router.Group("/auth")
	{
		session.POST("/refresh", auth.Refresh)
		session.POST("/logout", auth.Logout)
	}

	// NDI verification routes
	api := router.Group("/api")
	{
		api.POST("/ndi/proof-request", ndi.ProofRequest)
		api.GET("/ndi/proof-status/:threadId", ndi.ProofStatus)
		api.POST("/ndi/register", ndi.Register)

		api.POST("/ndi-webhook", ndi.Webhook)
		api.GET("/ndi-webhook", ndi.LatestProof)
		api.GET("/ndi-webhook/events", sse.Events)
	}

	// Protected API routes
	protected := router.Group("/api")
	protected.Use(AuthMiddleware(deps.Auth))
	{
		protected.GET("/me", auth.Me)
	}

	return router
}
