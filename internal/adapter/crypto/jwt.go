package crypto

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gitlab.com/opensubmit.net/internal/config"
	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/domain"
	"gitlab.com/opensubmit.net/internal/static/errs"
)

var _ primary.JWTService = (*JWTServiceImpl)(nil)

type JWTServiceImpl struct {
	HMACSecretKey string
	now           func() time.Time
}

func NewJWTService(jwtConfig *config.JwtConfig) *JWTServiceImpl {
	return &JWTServiceImpl{
		HMACSecretKey: jwtConfig.Secret,
		now:           time.Now,
	}
}

func (J JWTServiceImpl) GenerateTokenHMAC(ctx context.Context, method string, claims map[string]interface{}) (string, error) {
	if J.HMACSecretKey == "" {
		return "", fmt.Errorf("%w: no signing secret configured", errs.GeneratingToken)
	}

	signingMethod := jwt.GetSigningMethod(method)
	if signingMethod == nil {
		return "", fmt.Errorf("unsupported signing method: %s", method)
	}
	if _, ok := signingMethod.(*jwt.SigningMethodHMAC); !ok {
		return "", fmt.Errorf("not an HMAC signing method: %s", method)
	}

	// Ensure the claims map contains an expiration time
	if _, exists := claims["exp"]; !exists {
		claims["exp"] = J.now().Add(time.Hour).Unix()
	}

	tok := jwt.NewWithClaims(signingMethod, jwt.MapClaims(claims))
	return tok.SignedString([]byte(J.HMACSecretKey))
}

func (J JWTServiceImpl) VerifyTokenHMAC(ctx context.Context, token string, method string) (bool, error) {
	if J.HMACSecretKey == "" {
		return false, errs.InvalidToken
	}

	signingMethod := jwt.GetSigningMethod(method)
	if signingMethod == nil {
		return false, fmt.Errorf("unsupported signing method: %s", method)
	}

	parsedToken, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(J.HMACSecretKey), nil
	}, jwt.WithValidMethods([]string{signingMethod.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return false, fmt.Errorf("%w: %v", errs.InvalidToken, err)
	}

	return parsedToken.Valid, nil
}

// IssueStaffToken mints a token for the staff API
func (J JWTServiceImpl) IssueStaffToken(ctx context.Context, subject string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("subject is required: %w", errs.ErrInvalidArgument)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := J.now()
	return J.GenerateTokenHMAC(ctx, jwt.SigningMethodHS256.Alg(), map[string]interface{}{
		"sub":        subject,
		"permission": []string{domain.PermissionStaff},
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	})
}

func decodeSeg(signature string) ([]byte, error) {
	return jwt.NewParser().DecodeSegment(signature)
}

// DecodeTokenPayload reads the claims without verifying the signature.
// Callers verify first.
func (J JWTServiceImpl) DecodeTokenPayload(ctx context.Context, token string) (domain.AuthPayload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return domain.AuthPayload{}, fmt.Errorf("%w: invalid token format", errs.InvalidToken)
	}

	payloadData, err := decodeSeg(parts[1])
	if err != nil {
		return domain.AuthPayload{}, fmt.Errorf("failed to decode token payload: %w", err)
	}

	var authPayload domain.AuthPayload
	if err := json.Unmarshal(payloadData, &authPayload); err != nil {
		return domain.AuthPayload{}, fmt.Errorf("failed to parse AuthPayload: %w", err)
	}

	return authPayload, nil
}
