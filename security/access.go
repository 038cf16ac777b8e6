// Package security provides the reference AccessValidator implementation
// consumed by agent/sac before every peer delegation (spec §6). Grounded
// on the teacher's pkg/auth JWTValidator: JWKS fetched and cached via
// lestrrat-go/jwx, refreshed on an interval to tolerate key rotation.
package security

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/solacelabs/sam-core/collab"
)

// BearerTokenKey is the userConfig map key holding the security_context's
// opaque bearer token (spec §3: "opaque token material, never logged").
const BearerTokenKey = "bearer_token"

// JWTAccessValidator implements collab.AccessValidator by checking a
// "peers" claim (space-delimited agent names, following the OAuth2 "scope"
// claim convention) against the target agent name.
type JWTAccessValidator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// NewJWTAccessValidator fetches and caches the JWKS at jwksURL, matching
// the teacher's auto-refresh posture (every 15 minutes, tolerating key
// rotation without a restart).
func NewJWTAccessValidator(ctx context.Context, jwksURL, issuer, audience string) (*JWTAccessValidator, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("security: register JWKS url: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("security: initial JWKS fetch: %w", err)
	}
	return &JWTAccessValidator{jwksURL: jwksURL, cache: cache, issuer: issuer, audience: audience}, nil
}

// ValidateAgentAccess decodes and verifies the bearer token in userConfig
// and checks that targetAgent appears in its "peers" scope. It does not
// check for self-delegation; SelfDelegationValidator adds that check.
func (v *JWTAccessValidator) ValidateAgentAccess(ctx context.Context, userConfig map[string]any, targetAgent string) error {
	bearerToken, ok := userConfig[BearerTokenKey].(string)
	if !ok || bearerToken == "" {
		return &collab.PermissionDeniedError{TargetAgent: targetAgent, Reason: "missing or malformed security context"}
	}

	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return &collab.PermissionDeniedError{TargetAgent: targetAgent, Reason: fmt.Sprintf("jwks unavailable: %v", err)}
	}

	token, err := jwt.Parse([]byte(bearerToken),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return &collab.PermissionDeniedError{TargetAgent: targetAgent, Reason: "invalid bearer token"}
	}

	scopes := decodeScopes(token)
	if !scopes[targetAgent] {
		return &collab.PermissionDeniedError{TargetAgent: targetAgent, Reason: "target agent not in token's peers scope"}
	}
	return nil
}

func decodeScopes(token jwt.Token) map[string]bool {
	out := map[string]bool{}
	raw, ok := token.Get("peers")
	if !ok {
		return out
	}
	s, ok := raw.(string)
	if !ok {
		return out
	}
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if i > start {
				out[s[start:i]] = true
			}
			start = i + 1
		}
	}
	return out
}

// SelfDelegationValidator wraps another AccessValidator to unconditionally
// reject delegation to the agent's own name, independent of token scope
// (spec §8: worker_pool_size=1 must not deadlock on self-delegation).
type SelfDelegationValidator struct {
	SelfName string
	Inner    collab.AccessValidator
}

func (v *SelfDelegationValidator) ValidateAgentAccess(ctx context.Context, userConfig map[string]any, targetAgent string) error {
	if targetAgent == v.SelfName {
		return &collab.PermissionDeniedError{TargetAgent: targetAgent, Reason: "agents must not delegate to themselves"}
	}
	return v.Inner.ValidateAgentAccess(ctx, userConfig, targetAgent)
}
