package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/investocrafy/internal/chat"
	"github.com/suPer8Hu/investocrafy/internal/common"
	"github.com/suPer8Hu/investocrafy/internal/email"
	"github.com/suPer8Hu/investocrafy/internal/models"
	"github.com/suPer8Hu/investocrafy/internal/store/objectstore"
	"gorm.io/gorm"
)

// GetUser serves the profile from the user:{id} mirror, falling back to the
// store and refilling the mirror.
func (h *Handler) GetUser(c *gin.Context) {
	investorID, ok := investorIDFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var cached models.Profile
	hit, err := h.Redis.GetJSON(ctx, chat.UserKey(investorID), &cached)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("user mirror read failed")
	}
	if hit && cached.ID == investorID {
		common.OK(c, cached)
		return
	}

	inv, ok := h.loadInvestor(c, investorID)
	if !ok {
		return
	}
	common.OK(c, h.cacheProfile(c, inv))
}

type updateUserReq struct {
	Name        *string `json:"name"`
	CompanyName *string `json:"companyName"`
	Phone       *string `json:"phone"`
}

// UpdateUser accepts JSON or a multipart form; the form may carry an "avatar"
// image.
func (h *Handler) UpdateUser(c *gin.Context) {
	investorID, ok := investorIDFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req updateUserReq
	multipart := strings.HasPrefix(c.ContentType(), "multipart/form-data")
	if multipart {
		if v, ok := c.GetPostForm("name"); ok {
			req.Name = &v
		}
		if v, ok := c.GetPostForm("companyName"); ok {
			req.CompanyName = &v
		}
		if v, ok := c.GetPostForm("phone"); ok {
			req.Phone = &v
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			common.Fail(c, http.StatusBadRequest, 10002, "name cannot be empty")
			return
		}
		updates["name"] = name
	}
	if req.CompanyName != nil {
		updates["company_name"] = strings.TrimSpace(*req.CompanyName)
	}
	if req.Phone != nil {
		updates["phone"] = strings.TrimSpace(*req.Phone)
	}

	inv, ok := h.loadInvestor(c, investorID)
	if !ok {
		return
	}

	oldAvatarKey := ""
	if multipart {
		if fh, err := c.FormFile("avatar"); err == nil {
			if h.Avatars == nil {
				common.Fail(c, http.StatusServiceUnavailable, 50301, "avatar storage not configured")
				return
			}
			if fh.Size > objectstore.MaxAvatarBytes {
				common.Fail(c, http.StatusBadRequest, 10006, "avatar too large")
				return
			}
			contentType := fh.Header.Get("Content-Type")
			if !objectstore.AllowedAvatarType(contentType) {
				common.Fail(c, http.StatusBadRequest, 10007, "avatar must be a jpeg, png, webp or gif image")
				return
			}
			f, err := fh.Open()
			if err != nil {
				common.Fail(c, http.StatusBadRequest, 10006, "unreadable avatar")
				return
			}
			key, err := h.Avatars.Put(ctx, investorID, f, fh.Size, contentType)
			_ = f.Close()
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("avatar upload failed")
				common.Fail(c, http.StatusInternalServerError, 50002, "avatar upload failed")
				return
			}
			avatarURL, err := h.Avatars.URL(ctx, key)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("avatar presign failed")
			}
			updates["avatar_key"] = key
			updates["avatar_url"] = avatarURL
			oldAvatarKey = inv.Avatar.Key
		}
	}

	if len(updates) == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "nothing to update")
		return
	}
	if err := h.DB.WithContext(ctx).Model(inv).Updates(updates).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if oldAvatarKey != "" {
		if err := h.Avatars.Delete(ctx, oldAvatarKey); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", oldAvatarKey).Msg("old avatar not removed")
		}
	}

	inv, ok = h.loadInvestor(c, investorID)
	if !ok {
		return
	}
	common.OKMsg(c, "profile updated", h.cacheProfile(c, inv))
}

// DeleteUser removes the account with every chat, message and cache key it
// owns.
func (h *Handler) DeleteUser(c *gin.Context) {
	investorID, ok := investorIDFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	inv, ok := h.loadInvestor(c, investorID)
	if !ok {
		return
	}
	if err := h.ChatSvc.PurgeInvestor(ctx, investorID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("purge investor failed")
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to delete account")
		return
	}
	if err := h.DB.WithContext(ctx).Delete(&models.Investor{}, "id = ?", investorID).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if err := h.Redis.Del(ctx, chat.UserKey(investorID)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("user mirror not removed")
	}
	if inv.Avatar.Key != "" && h.Avatars != nil {
		if err := h.Avatars.Delete(ctx, inv.Avatar.Key); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("avatar not removed")
		}
	}
	h.clearSessionCookies(c)
	h.enqueueMail(c, email.AccountDeletedJob(inv.Email))

	common.OKMsg(c, "account deleted", gin.H{"id": investorID})
}

func (h *Handler) loadInvestor(c *gin.Context, investorID string) (*models.Investor, bool) {
	var inv models.Investor
	if err := h.DB.WithContext(c.Request.Context()).First(&inv, "id = ?", investorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return nil, false
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return nil, false
	}
	return &inv, true
}

// cacheProfile builds the client view of inv, refreshing the avatar link, and
// rewrites the user mirror.
func (h *Handler) cacheProfile(c *gin.Context, inv *models.Investor) models.Profile {
	ctx := c.Request.Context()
	p := inv.Profile()
	if inv.Avatar.Key != "" && h.Avatars != nil {
		if u, err := h.Avatars.URL(ctx, inv.Avatar.Key); err == nil {
			p.AvatarURL = u
		}
	}
	if err := h.Redis.SetJSON(ctx, chat.UserKey(inv.ID), p, chat.MirrorTTL); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("user mirror write failed")
	}
	return p
}
