package redisstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

type OTPPurpose string

const (
	PurposeSignup OTPPurpose = "signup_otp"
	PurposeReset  OTPPurpose = "reset_otp"

	OTPTTL          = 5 * time.Minute
	OTPResendAfter  = time.Minute
	ResetTokenTTL   = 10 * time.Minute
	maxOTPAttempts  = 5
	otpCodeLength   = 6
	resetTokenBytes = 32
)

var (
	ErrOTPExpired     = errors.New("verification code expired or not found")
	ErrOTPInvalid     = errors.New("incorrect verification code")
	ErrOTPRateLimited = errors.New("too many verification code requests")
	ErrTokenInvalid   = errors.New("reset token invalid or expired")
)

type otpRecord struct {
	CodeHash string `json:"codeHash"`
	Attempts int    `json:"attempts"`
}

func otpKey(purpose OTPPurpose, email string) string {
	return string(purpose) + ":" + normalizeEmail(email)
}

func otpResendKey(purpose OTPPurpose, email string) string {
	return "otp_resend:" + string(purpose) + ":" + normalizeEmail(email)
}

func resetTokenKey(token string) string { return "pwd-reset:" + token }

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// IssueOTP stores a fresh hashed code for email and returns it in clear.
// Re-issuing within OTPResendAfter fails with ErrOTPRateLimited.
func (s *Store) IssueOTP(ctx context.Context, purpose OTPPurpose, email string) (string, error) {
	allowed, err := s.rdb.SetNX(ctx, otpResendKey(purpose, email), "1", OTPResendAfter).Result()
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", ErrOTPRateLimited
	}

	code, err := generateNumericCode(otpCodeLength)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash otp: %w", err)
	}
	raw, err := json.Marshal(otpRecord{CodeHash: string(hash)})
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, otpKey(purpose, email), raw, OTPTTL).Err(); err != nil {
		_ = s.rdb.Del(ctx, otpResendKey(purpose, email)).Err()
		return "", err
	}
	return code, nil
}

// VerifyOTP consumes the code on success. Wrong codes count against the
// attempt budget without extending the expiry.
func (s *Store) VerifyOTP(ctx context.Context, purpose OTPPurpose, email, code string) error {
	key := otpKey(purpose, email)
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrOTPExpired
	}
	if err != nil {
		return err
	}
	var rec otpRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.CodeHash == "" {
		_ = s.rdb.Del(ctx, key).Err()
		return ErrOTPExpired
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(strings.TrimSpace(code))) != nil {
		rec.Attempts++
		if rec.Attempts >= maxOTPAttempts {
			_ = s.rdb.Del(ctx, key).Err()
			return ErrOTPInvalid
		}
		if b, err := json.Marshal(rec); err == nil {
			if ttl, err := s.rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				_ = s.rdb.Set(ctx, key, b, ttl).Err()
			}
		}
		return ErrOTPInvalid
	}
	return s.rdb.Del(ctx, key, otpResendKey(purpose, email)).Err()
}

// IssueResetToken maps a random token to email for ResetTokenTTL.
func (s *Store) IssueResetToken(ctx context.Context, email string) (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)
	if err := s.rdb.Set(ctx, resetTokenKey(token), normalizeEmail(email), ResetTokenTTL).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// ConsumeResetToken returns the token's email and deletes the token.
func (s *Store) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenInvalid
	}
	email, err := s.rdb.GetDel(ctx, resetTokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenInvalid
	}
	if err != nil {
		return "", err
	}
	return email, nil
}

func generateNumericCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
