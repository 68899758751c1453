package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/klinikdesk/platform/internal/docstore"
	"github.com/klinikdesk/platform/pkg/logging"
)

// Resolver turns a session token into an actor. The strategy is selected
// once at startup: SessionResolver in real deployments, StaticResolver for
// local development only.
type Resolver interface {
	ResolveActor(ctx context.Context, token string) (Actor, error)
}

// Membership is the role record linking a user to a clinic.
type Membership struct {
	ID       string `json:"id" dynamodbav:"id"`
	ClinicID string `json:"clinicId" dynamodbav:"clinicId"`
	UserID   string `json:"userId" dynamodbav:"userId"`
	Role     string `json:"role" dynamodbav:"role"`
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// SessionResolver validates an HMAC-signed session token and resolves the
// user's role for the configured clinic from the memberships collection.
// Role lookups are cached in Redis when a client is provided.
type SessionResolver struct {
	secret      []byte
	store       docstore.Store
	memberships string
	clinicID    string
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      *logging.Logger
}

var _ Resolver = (*SessionResolver)(nil)

// NewSessionResolver builds the production resolver.
func NewSessionResolver(secret string, store docstore.Store, membershipsCollection, clinicID string, cache *redis.Client, cacheTTL time.Duration, logger *logging.Logger) *SessionResolver {
	if secret == "" {
		panic("identity: session secret cannot be empty")
	}
	if store == nil {
		panic("identity: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &SessionResolver{
		secret:      []byte(secret),
		store:       store,
		memberships: membershipsCollection,
		clinicID:    clinicID,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// ResolveActor implements Resolver.
func (r *SessionResolver) ResolveActor(ctx context.Context, token string) (Actor, error) {
	if token == "" {
		return Actor{}, ErrUnauthenticated
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return Actor{}, ErrUnauthenticated
	}

	role, err := r.lookupRole(ctx, claims.Subject)
	if err != nil {
		return Actor{}, err
	}

	return Actor{
		ID:       claims.Subject,
		Email:    claims.Email,
		Role:     role,
		ClinicID: r.clinicID,
	}, nil
}

func (r *SessionResolver) lookupRole(ctx context.Context, userID string) (Role, error) {
	cacheKey := "membership:" + r.clinicID + ":" + userID

	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, cacheKey).Result(); err == nil {
			if role, parseErr := ParseRole(cached); parseErr == nil {
				return role, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			r.logger.Warn("membership cache read failed", "user_id", userID, "error", err)
		}
	}

	var records []Membership
	err := r.store.List(ctx, r.memberships, docstore.Query{
		Eq:    map[string]any{"clinicId": r.clinicID, "userId": userID},
		Limit: 1,
	}, &records)
	if err != nil {
		return "", fmt.Errorf("identity: membership lookup: %w", err)
	}
	if len(records) == 0 {
		return "", ErrNoMembership
	}

	role, err := ParseRole(records[0].Role)
	if err != nil {
		return "", fmt.Errorf("identity: membership for user %s holds invalid role: %w", userID, err)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKey, string(role), r.cacheTTL).Err(); err != nil {
			r.logger.Warn("membership cache write failed", "user_id", userID, "error", err)
		}
	}
	return role, nil
}
