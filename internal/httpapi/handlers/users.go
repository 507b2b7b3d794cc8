package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/investocrafy/internal/auth"
	"github.com/suPer8Hu/investocrafy/internal/common"
	"github.com/suPer8Hu/investocrafy/internal/email"
	"github.com/suPer8Hu/investocrafy/internal/httpapi/middleware"
	"github.com/suPer8Hu/investocrafy/internal/models"
	"github.com/suPer8Hu/investocrafy/internal/store/redisstore"
	"gorm.io/gorm"
)

const (
	minPasswordLen     = 8
	refreshTokenCookie = "refreshToken"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

type signupReq struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	CompanyName string `json:"companyName"`
	Phone       string `json:"phone"`
}

// Signup registers an unverified investor and mails a signup code. An email
// that already has an account, verified or not, is rejected; pending
// accounts use resend-otp.
func (h *Handler) Signup(c *gin.Context) {
	var req signupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "name, email and password required")
		return
	}
	if !emailPattern.MatchString(req.Email) {
		common.Fail(c, http.StatusBadRequest, 10003, "invalid email")
		return
	}
	if len(req.Password) < minPasswordLen {
		common.Fail(c, http.StatusBadRequest, 10004, "password must be at least 8 characters")
		return
	}

	ctx := c.Request.Context()
	var existing models.Investor
	err := h.DB.WithContext(ctx).Where("email = ?", req.Email).First(&existing).Error
	switch {
	case err == nil && existing.Verified:
		common.Fail(c, http.StatusConflict, 40901, "email already registered")
		return
	case err == nil:
		common.Fail(c, http.StatusConflict, 40902, "account awaiting verification, request a new code")
		return
	case !errors.Is(err, gorm.ErrRecordNotFound):
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}
	inv := models.Investor{
		ID:           common.MustULID(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		CompanyName:  strings.TrimSpace(req.CompanyName),
		Phone:        strings.TrimSpace(req.Phone),
	}
	// the code goes out only once the account row exists
	if err := h.DB.WithContext(ctx).Create(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			common.Fail(c, http.StatusConflict, 40901, "email already registered")
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Msg("create investor")
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if err := h.sendOTP(ctx, redisstore.PurposeSignup, req.Email); err != nil {
		h.failOTP(c, err, "failed to send verification code")
		return
	}

	common.Created(c, "verification code sent", gin.H{
		"id":       inv.ID,
		"email":    inv.Email,
		"verified": false,
	})
}

type verifyOTPReq struct {
	Email   string `json:"email"`
	OTP     string `json:"otp"`
	Purpose string `json:"purpose"` // "signup" (default) or "reset"
}

// VerifyOTP confirms a signup (and logs the investor in) or, for the reset
// purpose, trades the code for a one-time reset token.
func (h *Handler) VerifyOTP(c *gin.Context) {
	var req verifyOTPReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || strings.TrimSpace(req.OTP) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email and otp required")
		return
	}
	purpose, ok := otpPurpose(req.Purpose)
	if !ok {
		common.Fail(c, http.StatusBadRequest, 10008, "unknown otp purpose")
		return
	}

	ctx := c.Request.Context()
	if err := h.Redis.VerifyOTP(ctx, purpose, req.Email, req.OTP); err != nil {
		h.failOTP(c, err, "failed to verify code")
		return
	}

	if purpose == redisstore.PurposeReset {
		token, err := h.Redis.IssueResetToken(ctx, req.Email)
		if err != nil {
			common.Fail(c, http.StatusInternalServerError, 20003, "redis error")
			return
		}
		common.OK(c, gin.H{"resetToken": token})
		return
	}

	var inv models.Investor
	if err := h.DB.WithContext(ctx).Where("email = ?", req.Email).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if !inv.Verified {
		if err := h.DB.WithContext(ctx).Model(&inv).Update("verified", true).Error; err != nil {
			common.Fail(c, http.StatusInternalServerError, 20001, "db error")
			return
		}
		inv.Verified = true
		h.enqueueMail(c, email.WelcomeJob(inv.Email, inv.Name))
	}

	h.respondWithSession(c, &inv)
}

type resendOTPReq struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

func (h *Handler) ResendOTP(c *gin.Context) {
	var req resendOTPReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email required")
		return
	}
	purpose, ok := otpPurpose(req.Purpose)
	if !ok {
		common.Fail(c, http.StatusBadRequest, 10008, "unknown otp purpose")
		return
	}
	if purpose == redisstore.PurposeReset {
		h.startPasswordReset(c, req.Email)
		return
	}

	var inv models.Investor
	if err := h.DB.WithContext(c.Request.Context()).Where("email = ?", req.Email).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if inv.Verified {
		common.Fail(c, http.StatusBadRequest, 10022, "account already verified")
		return
	}
	if err := h.sendOTP(c.Request.Context(), redisstore.PurposeSignup, req.Email); err != nil {
		h.failOTP(c, err, "failed to send code")
		return
	}
	common.OKMsg(c, "verification code sent", nil)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email and password required")
		return
	}

	var inv models.Investor
	if err := h.DB.WithContext(c.Request.Context()).Where("email = ?", req.Email).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusUnauthorized, 40103, "invalid email or password")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if !auth.CheckPassword(inv.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40103, "invalid email or password")
		return
	}
	if !inv.Verified {
		common.Fail(c, http.StatusForbidden, 40301, "email not verified")
		return
	}

	h.respondWithSession(c, &inv)
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var req refreshReq
	_ = c.ShouldBindJSON(&req) // the cookie alone is enough
	tok := strings.TrimSpace(req.RefreshToken)
	if tok == "" {
		tok, _ = c.Cookie(refreshTokenCookie)
	}
	if tok == "" {
		common.Fail(c, http.StatusUnauthorized, 40101, "missing refresh token")
		return
	}
	investorID, err := auth.ParseJWT(tok, h.Cfg.RefreshTokenSecret)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid or expired token")
		return
	}

	var cnt int64
	if err := h.DB.WithContext(c.Request.Context()).Model(&models.Investor{}).Where("id = ?", investorID).Count(&cnt).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if cnt == 0 {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid or expired token")
		return
	}

	pair, err := auth.IssuePair(investorID, h.Cfg.AccessTokenSecret, h.Cfg.RefreshTokenSecret)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20004, "failed to sign token")
		return
	}
	h.setSessionCookies(c, pair)
	common.OK(c, pair)
}

func (h *Handler) Logout(c *gin.Context) {
	h.clearSessionCookies(c)
	common.OKMsg(c, "logged out", nil)
}

type forgotPasswordReq struct {
	Email string `json:"email"`
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email required")
		return
	}
	h.startPasswordReset(c, req.Email)
}

// startPasswordReset answers the same way whether or not the account exists.
func (h *Handler) startPasswordReset(c *gin.Context, addr string) {
	const msg = "if the account exists, a reset code has been sent"

	var inv models.Investor
	err := h.DB.WithContext(c.Request.Context()).Where("email = ?", addr).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !inv.Verified) {
		common.OKMsg(c, msg, nil)
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if err := h.sendOTP(c.Request.Context(), redisstore.PurposeReset, addr); err != nil {
		h.failOTP(c, err, "failed to send code")
		return
	}
	common.OKMsg(c, msg, nil)
}

type resetPasswordReq struct {
	ResetToken string `json:"resetToken"`
	Password   string `json:"password"`
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.ResetToken) == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "resetToken and password required")
		return
	}
	if len(req.Password) < minPasswordLen {
		common.Fail(c, http.StatusBadRequest, 10004, "password must be at least 8 characters")
		return
	}

	ctx := c.Request.Context()
	addr, err := h.Redis.ConsumeResetToken(ctx, req.ResetToken)
	if err != nil {
		if errors.Is(err, redisstore.ErrTokenInvalid) {
			common.Fail(c, http.StatusBadRequest, 10023, "reset token invalid or expired")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20003, "redis error")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}
	res := h.DB.WithContext(ctx).Model(&models.Investor{}).Where("email = ?", addr).Update("password_hash", hash)
	if res.Error != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if res.RowsAffected == 0 {
		common.Fail(c, http.StatusNotFound, 40401, "user not found")
		return
	}
	common.OKMsg(c, "password updated", nil)
}

func otpPurpose(s string) (redisstore.OTPPurpose, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "signup":
		return redisstore.PurposeSignup, true
	case "reset":
		return redisstore.PurposeReset, true
	}
	return "", false
}

// sendOTP issues a code and queues the mail carrying it.
func (h *Handler) sendOTP(ctx context.Context, purpose redisstore.OTPPurpose, addr string) error {
	code, err := h.Redis.IssueOTP(ctx, purpose, addr)
	if err != nil {
		return err
	}
	kind, page := email.KindSignupOTP, "/verify-otp"
	if purpose == redisstore.PurposeReset {
		kind, page = email.KindResetOTP, "/reset-password"
	}
	link := strings.TrimRight(h.Cfg.FrontendURL, "/") + page + "?email=" + url.QueryEscape(addr)
	return h.Mailer.Enqueue(ctx, email.OTPJob(kind, addr, code, link, redisstore.OTPTTL))
}

func (h *Handler) failOTP(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, redisstore.ErrOTPRateLimited):
		common.Fail(c, http.StatusTooManyRequests, 42901, "a code was sent recently, please wait a minute")
	case errors.Is(err, redisstore.ErrOTPExpired):
		common.Fail(c, http.StatusBadRequest, 10020, "verification code expired or not found")
	case errors.Is(err, redisstore.ErrOTPInvalid):
		common.Fail(c, http.StatusBadRequest, 10021, "invalid verification code")
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg(msg)
		common.Fail(c, http.StatusInternalServerError, 50001, msg)
	}
}

// enqueueMail is for notifications whose loss must not fail the request.
func (h *Handler) enqueueMail(c *gin.Context, job email.Job) {
	if err := h.Mailer.Enqueue(c.Request.Context(), job); err != nil {
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Str("kind", string(job.Kind)).Msg("mail enqueue failed")
	}
}

func (h *Handler) respondWithSession(c *gin.Context, inv *models.Investor) {
	pair, err := auth.IssuePair(inv.ID, h.Cfg.AccessTokenSecret, h.Cfg.RefreshTokenSecret)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20004, "failed to sign token")
		return
	}
	profile := h.cacheProfile(c, inv)
	h.setSessionCookies(c, pair)
	common.OK(c, gin.H{
		"user":         profile,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *Handler) setSessionCookies(c *gin.Context, pair auth.TokenPair) {
	secure := c.Request.TLS != nil
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, pair.AccessToken, int(auth.AccessTokenTTL.Seconds()), "/", "", secure, true)
	c.SetCookie(refreshTokenCookie, pair.RefreshToken, int(auth.RefreshTokenTTL.Seconds()), "/", "", secure, true)
}

func (h *Handler) clearSessionCookies(c *gin.Context) {
	secure := c.Request.TLS != nil
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", secure, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/", "", secure, true)
}
