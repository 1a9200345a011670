package primary

import (
	"context"
	"time"

	"gitlab.com/opensubmit.net/internal/domain"
)

// JWTService issues and checks the HMAC tokens used by the staff API
type JWTService interface {
	GenerateTokenHMAC(ctx context.Context, method string, claims map[string]interface{}) (string, error)
	VerifyTokenHMAC(ctx context.Context, token string, method string) (bool, error)
	DecodeTokenPayload(ctx context.Context, token string) (domain.AuthPayload, error)
	IssueStaffToken(ctx context.Context, subject string, ttl time.Duration) (string, error)
}
