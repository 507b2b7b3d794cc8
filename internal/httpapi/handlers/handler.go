package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/investocrafy/internal/chat"
	"github.com/suPer8Hu/investocrafy/internal/common"
	"github.com/suPer8Hu/investocrafy/internal/config"
	"github.com/suPer8Hu/investocrafy/internal/email"
	"github.com/suPer8Hu/investocrafy/internal/httpapi/middleware"
	"github.com/suPer8Hu/investocrafy/internal/store/objectstore"
	"github.com/suPer8Hu/investocrafy/internal/store/redisstore"
	"gorm.io/gorm"
)

// Deps are the collaborators the handlers need. Avatars may be nil when no
// object storage is configured.
type Deps struct {
	DB      *gorm.DB
	Cfg     config.Config
	Redis   *redisstore.Store
	ChatSvc *chat.Service
	Mailer  email.Mailer
	Avatars objectstore.AvatarStore
}

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	Redis   *redisstore.Store
	ChatSvc *chat.Service
	Mailer  email.Mailer
	Avatars objectstore.AvatarStore
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		DB:      d.DB,
		Cfg:     d.Cfg,
		Redis:   d.Redis,
		ChatSvc: d.ChatSvc,
		Mailer:  d.Mailer,
		Avatars: d.Avatars,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func investorIDFromContext(c *gin.Context) (string, bool) {
	id, ok := middleware.InvestorID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	}
	return id, ok
}
