package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-slack/core"
)

const (
	MethodAuthTest = "auth.test"
	DefaultTTL     = 10 * time.Minute
)

var ErrIdentityNotFound = errors.New("identity: token identity not found")

type IdentityNotFoundError struct {
	Cause error
}

func (e *IdentityNotFoundError) Error() string {
	if e == nil || e.Cause == nil {
		return ErrIdentityNotFound.Error()
	}
	return ErrIdentityNotFound.Error() + ": " + e.Cause.Error()
}

func (e *IdentityNotFoundError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return ErrIdentityNotFound
	}
	return errors.Join(ErrIdentityNotFound, e.Cause)
}

func (e *IdentityNotFoundError) ToServiceError() *goerrors.Error {
	message := ErrIdentityNotFound.Error()
	if e != nil && e.Cause != nil {
		message = e.Error()
	}
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(core.ErrorTextNotFound)
}

type Caller interface {
	Call(ctx context.Context, method string, params map[string]any, opts ...core.CallOption) (core.CallResult, error)
}

// Identity is the workspace and principal a token acts as, as reported by
// auth.test.
type Identity struct {
	URL                 string
	Team                string
	TeamID              string
	User                string
	UserID              string
	BotID               string
	EnterpriseID        string
	IsEnterpriseInstall bool
	Raw                 map[string]any
}

func (i Identity) IsBot() bool {
	return strings.TrimSpace(i.BotID) != ""
}

func (i Identity) Map() map[string]any {
	return map[string]any{
		"url":                   strings.TrimSpace(i.URL),
		"team":                  strings.TrimSpace(i.Team),
		"team_id":               strings.TrimSpace(i.TeamID),
		"user":                  strings.TrimSpace(i.User),
		"user_id":               strings.TrimSpace(i.UserID),
		"bot_id":                strings.TrimSpace(i.BotID),
		"enterprise_id":         strings.TrimSpace(i.EnterpriseID),
		"is_enterprise_install": i.IsEnterpriseInstall,
	}
}

const identityCacheKeyPrefix = "go-slack::identity::v1"

// Resolver calls auth.test and caches the answer per token. Failed lookups
// are not cached.
type Resolver struct {
	caller Caller
	ttl    time.Duration
	cache  repositorycache.CacheService
}

type Option func(*Resolver)

// WithTTL sets the lifetime of cached identities. It only applies to the
// cache service the resolver builds for itself.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithCacheService(cache repositorycache.CacheService) Option {
	return func(r *Resolver) {
		if cache != nil {
			r.cache = cache
		}
	}
}

func NewResolver(caller Caller, opts ...Option) (*Resolver, error) {
	resolver := &Resolver{
		caller: caller,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(resolver)
		}
	}
	if resolver.cache == nil {
		config := repositorycache.DefaultConfig()
		config.TTL = resolver.ttl
		cache, err := repositorycache.NewCacheService(config)
		if err != nil {
			return nil, core.NewInternalError("identity: cache service: "+err.Error(), nil)
		}
		resolver.cache = cache
	}
	return resolver, nil
}

// CacheKey is go-slack::identity::v1::<sha256(token)>. Tokens never appear
// in keys.
func CacheKey(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return identityCacheKeyPrefix + "::" + hex.EncodeToString(sum[:])
}

// Resolve returns the identity of token. An empty token resolves the client's
// configured token.
func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	if r == nil || r.caller == nil || r.cache == nil {
		return Identity{}, core.NewInternalError("identity: resolver is not configured", nil)
	}
	token = strings.TrimSpace(token)
	identity, err := repositorycache.GetOrFetch(ctx, r.cache, CacheKey(token), func(ctx context.Context) (Identity, error) {
		return r.fetch(ctx, token)
	})
	if err != nil {
		return Identity{}, err
	}
	identity.Raw = copyMap(identity.Raw)
	return identity, nil
}

// Forget drops the cached identity for token.
func (r *Resolver) Forget(ctx context.Context, token string) error {
	if r == nil || r.cache == nil {
		return nil
	}
	return r.cache.Delete(ctx, CacheKey(token))
}

func (r *Resolver) fetch(ctx context.Context, token string) (Identity, error) {
	var opts []core.CallOption
	if token != "" {
		opts = append(opts, core.WithCallToken(token))
	}
	result, err := r.caller.Call(ctx, MethodAuthTest, nil, opts...)
	if err != nil {
		return Identity{}, err
	}
	identity := identityFromPayload(result.Payload)
	if identity.UserID == "" || (identity.TeamID == "" && identity.EnterpriseID == "") {
		return Identity{}, &IdentityNotFoundError{}
	}
	return identity, nil
}

func identityFromPayload(payload map[string]any) Identity {
	enterprise, _ := payload["is_enterprise_install"].(bool)
	return Identity{
		URL:                 readString(payload, "url"),
		Team:                readString(payload, "team"),
		TeamID:              readString(payload, "team_id"),
		User:                readString(payload, "user"),
		UserID:              readString(payload, "user_id"),
		BotID:               readString(payload, "bot_id"),
		EnterpriseID:        readString(payload, "enterprise_id"),
		IsEnterpriseInstall: enterprise,
		Raw:                 copyMap(payload),
	}
}

func readString(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return strings.TrimSpace(value)
}

func copyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
