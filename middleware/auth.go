package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/opsdash/commesse-api/config"
	"github.com/opsdash/commesse-api/services"
	"go.uber.org/zap"
)

// WriteScope is required on every route that mutates orders or phases
const WriteScope = "write:commesse"

// CustomClaims contains custom data we want from the token.
type CustomClaims struct {
	Scope string `json:"scope"`
	Name  string `json:"name"`
}

// Validate does nothing, but we need it to satisfy validator.CustomClaims.
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// HasScope checks whether our claims have a specific scope.
func (c CustomClaims) HasScope(expectedScope string) bool {
	result := strings.Split(c.Scope, " ")
	for i := range result {
		if result[i] == expectedScope {
			return true
		}
	}

	return false
}

// NameResolver looks up the display name of a token subject
type NameResolver interface {
	DisplayName(ctx context.Context, subject, accessToken string) (string, error)
}

// EnsureValidToken is a middleware that will check the validity of our JWT.
// The actor of the request is the token's name claim, else the name returned
// by names (may be nil), else the subject.
func EnsureValidToken(cfg *config.Config, logger *zap.Logger, names NameResolver) (gin.HandlerFunc, error) {
	issuerURL, err := url.Parse("https://" + cfg.Auth0Domain + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse the issuer url: %w", err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{cfg.Auth0Audience},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up the jwt validator: %w", err)
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Info("rejected request with invalid token",
			zap.String("path", r.URL.Path),
			zap.Error(err))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		if _, writeErr := w.Write([]byte(`{"success":false,"error":{"code":"INVALID_TOKEN","message":"Failed to validate JWT."}}`)); writeErr != nil {
			logger.Warn("failed to write error response", zap.Error(writeErr))
		}
	}

	middleware := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
	)

	return func(c *gin.Context) {
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			token := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)

			userID := token.RegisteredClaims.Subject
			c.Set("user_id", userID)
			c.Set("validated_claims", token)

			accessToken := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			setActor(c, r, resolveActor(r.Context(), token, accessToken, names, logger))

			c.Next()
		}

		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)
	}, nil
}

// resolveActor returns the token's name claim, else the name found by names,
// else the subject.
func resolveActor(ctx context.Context, token *validator.ValidatedClaims, accessToken string, names NameResolver, logger *zap.Logger) string {
	userID := token.RegisteredClaims.Subject
	if claims, ok := token.CustomClaims.(*CustomClaims); ok && claims.Name != "" {
		return claims.Name
	}
	if names == nil {
		return userID
	}

	name, err := names.DisplayName(ctx, userID, accessToken)
	if err != nil {
		logger.Warn("failed to resolve user name", zap.String("user_id", userID), zap.Error(err))
		return userID
	}
	if name == "" {
		return userID
	}
	return name
}

// AnonymousActor is used in place of EnsureValidToken when auth is disabled
func AnonymousActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", services.AnonymousActor)
		setActor(c, c.Request, services.AnonymousActor)
		c.Next()
	}
}

func setActor(c *gin.Context, r *http.Request, actor string) {
	c.Set("actor", actor)
	c.Request = r.WithContext(services.WithActor(r.Context(), actor))
}

// ActorFromContext returns the display name of the user behind the request
func ActorFromContext(c *gin.Context) string {
	if actor, ok := c.Get("actor"); ok {
		if s, ok := actor.(string); ok && s != "" {
			return s
		}
	}
	return services.AnonymousActor
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) (string, error) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}

	userIDStr, ok := userID.(string)
	if !ok {
		return "", &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a string"}
	}

	return userIDStr, nil
}

// GetClaims extracts the validated JWT claims from the Gin context
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	claims, exists := c.Get("validated_claims")
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}

	return validatedClaims, nil
}

// RequireScope is a middleware that checks if the token has a specific scope
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := GetClaims(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "MISSING_CLAIMS",
					"message": "Could not retrieve token claims",
				},
			})
			c.Abort()
			return
		}

		customClaims, ok := claims.CustomClaims.(*CustomClaims)
		if !ok || !customClaims.HasScope(scope) {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INSUFFICIENT_SCOPE",
					"message": "Insufficient permissions to access this resource",
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
