package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/investocrafy/internal/auth"
	"github.com/suPer8Hu/investocrafy/internal/common"
)

const (
	InvestorIDKey     = "investor_id"
	AccessTokenCookie = "accessToken"
)

// AuthRequired accepts the access token from the Authorization header or the
// accessToken cookie and stores the investor id in the gin context.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" {
			tok, _ = c.Cookie(AccessTokenCookie)
		}
		if tok == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing access token")
			return
		}
		investorID, err := auth.ParseJWT(tok, secret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid or expired token")
			return
		}
		c.Set(InvestorIDKey, investorID)

		logger := zerolog.Ctx(c.Request.Context()).With().Str(InvestorIDKey, investorID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

func bearerToken(h string) string {
	h = strings.TrimSpace(h)
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func InvestorID(c *gin.Context) (string, bool) {
	v, ok := c.Get(InvestorIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
