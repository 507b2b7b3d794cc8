package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/investocrafy/internal/common"
	"github.com/suPer8Hu/investocrafy/internal/httpapi/handlers"
	"github.com/suPer8Hu/investocrafy/internal/httpapi/middleware"
)

// NewRouter wires every route. promptLimiter may be nil to disable prompt
// rate limiting.
func NewRouter(deps handlers.Deps, promptLimiter middleware.Limiter, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID(log))

	h := handlers.NewHandler(deps)

	r.GET("/ping", h.Ping)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// accounts
	a := r.Group("/auth")
	a.POST("/signup", h.Signup)
	a.POST("/verify-otp", h.VerifyOTP)
	a.POST("/resend-otp", h.ResendOTP)
	a.POST("/login", h.Login)
	a.POST("/refresh-token", h.RefreshToken)
	a.POST("/logout", h.Logout)
	a.POST("/forgot-password", h.ForgotPassword)
	a.POST("/reset-password", h.ResetPassword)

	authRequired := middleware.AuthRequired(deps.Cfg.AccessTokenSecret)
	a.GET("/user", authRequired, h.GetUser)
	a.PUT("/user", authRequired, h.UpdateUser)
	a.DELETE("/user", authRequired, h.DeleteUser)

	// rate limit runs before identity
	prompt := []gin.HandlerFunc{}
	if promptLimiter != nil {
		prompt = append(prompt, middleware.RateLimit(promptLimiter))
	}
	r.POST("/prompt", append(prompt, authRequired, h.SendPrompt)...)

	// chat (JWT required)
	authGroup := r.Group("/")
	authGroup.Use(authRequired)
	authGroup.GET("/chat", h.GetChat)
	authGroup.POST("/chat", h.CreateChat)
	authGroup.PUT("/chat", h.UpdateChat)
	authGroup.DELETE("/chat", h.DeleteChat)
	authGroup.GET("/history", h.GetHistory)
	return r
}
