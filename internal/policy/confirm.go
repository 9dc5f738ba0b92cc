package policy

import (
	"crypto/subtle"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrDangerousDisabled = errors.New("dangerous operation disabled: MCP_CONFIRM_TOKEN is not configured")
	ErrBadConfirmToken   = errors.New("confirm_token is invalid")
)

// ConfirmPolicy gates admin tools that discard user state behind a shared
// operator token.
type ConfirmPolicy struct {
	confirmToken string
}

func NewConfirmPolicy(confirmToken string) *ConfirmPolicy {
	return &ConfirmPolicy{confirmToken: strings.TrimSpace(confirmToken)}
}

func (p *ConfirmPolicy) RequireDangerous(confirmToken string) error {
	if p == nil || p.confirmToken == "" {
		return ErrDangerousDisabled
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(confirmToken)), []byte(p.confirmToken)) != 1 {
		return ErrBadConfirmToken
	}
	return nil
}
