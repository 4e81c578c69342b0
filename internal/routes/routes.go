package routes

import (
	"github.com/AnshRaj112/physiq-backend/internal/handlers"
	"github.com/AnshRaj112/physiq-backend/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// SetupRoutes registers every endpoint. Session resolution must already be
// installed on r; routes that need a member are wrapped in RequireUser here.
func SetupRoutes(r chi.Router, h *handlers.Handler, messageLimiter *middleware.KeyedLimiter) {
	r.Get("/health", h.Health)

	// Auth routes
	r.Post("/api/auth/signup", h.Signup)
	r.Post("/api/auth/login", h.Login)
	r.Post("/api/auth/logout", h.Logout)

	// Public catalog routes
	r.Get("/api/users", h.ListUsers)
	r.Get("/api/users/{id}", h.GetUser)
	r.Get("/api/leaderboard", h.Leaderboard)
	r.Get("/api/rewards", h.ListRewards)
	// Claims answer NotAuthenticated themselves, so they stay outside RequireUser.
	r.Post("/api/rewards/{id}/claim", h.ClaimReward)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)

		r.Get("/api/auth/me", h.Me)

		// Profile routes
		r.Put("/api/users/me", h.UpdateMe)
		r.Post("/api/users/me/image", h.UploadProfileImage)

		// Voting routes
		r.Post("/api/users/{id}/vote", h.Vote)
		r.Get("/api/users/{id}/vote", h.VoteStatus)

		// Messaging routes
		r.With(middleware.MessageRateLimit(messageLimiter)).Post("/api/messages", h.SendMessage)
		r.Get("/api/messages/conversations", h.Conversations)
		r.Get("/api/messages/{userId}", h.Conversation)
		r.Put("/api/messages/{id}/read", h.MarkRead)

		// Block list routes
		r.Get("/api/blocks", h.ListBlocked)
		r.Post("/api/blocks/{userId}", h.Block)
		r.Delete("/api/blocks/{userId}", h.Unblock)

		// Onboarding routes
		r.Get("/api/onboarding", h.GetOnboarding)
		r.Post("/api/onboarding/next", h.NextOnboardingStep)
		r.Put("/api/onboarding/step/{step}", h.GoToOnboardingStep)
		r.Post("/api/onboarding/points", h.AddOnboardingPoints)
		r.Post("/api/onboarding/badges/{id}", h.AddOnboardingBadge)
		r.Patch("/api/onboarding/data", h.UpdateOnboardingData)
		r.Post("/api/onboarding/celebrate", h.Celebrate)
		r.Post("/api/onboarding/activity", h.RecordActivity)
	})
}
