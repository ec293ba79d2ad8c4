package api

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prepmate/prepmate/internal/errors"
)

const ownerKey = "api.owner"

// Verifier resolves a bearer token to the owner it identifies.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type VerifierFunc func(ctx context.Context, token string) (string, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// StaticVerifier maps fixed tokens to owner IDs. Development use only.
func StaticVerifier(tokens map[string]string) Verifier {
	return VerifierFunc(func(_ context.Context, token string) (string, error) {
		owner, ok := tokens[token]
		if !ok {
			return "", errors.New(errors.CodeUnauthenticated,
				errors.WithMessagef("unknown token"))
		}
		return owner, nil
	})
}

// Authenticate resolves the request's bearer token and stores the owner ID
// on the context. Requests without a valid token are rejected with 401.
func Authenticate(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			abortError(c, errors.New(errors.CodeUnauthenticated,
				errors.WithMessagef("bearer token is required")))
			return
		}

		owner, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			abortError(c, errors.New(errors.CodeUnauthenticated,
				errors.WithMessagef("invalid token"),
				errors.WithCause(err)))
			return
		}

		c.Set(ownerKey, owner)
		c.Next()
	}
}

// Owner returns the authenticated owner ID set by Authenticate.
func Owner(c *gin.Context) string {
	return c.GetString(ownerKey)
}
