package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/yoockh/dinedesk/internal/utils"
)

type apiError struct {
	Code    utils.Code `json:"code"`
	Reason  string     `json:"reason,omitempty"`
	Message string     `json:"message"`
}

// StaffClaims is the token issued to restaurant staff. restaurant_id scopes
// every staff call; admins may act on any restaurant.
type StaffClaims struct {
	jwt.RegisteredClaims
	Role         string `json:"role"` // staff|manager|admin
	RestaurantID string `json:"restaurant_id"`
}

type JWTOptions struct {
	Secret   string
	Issuer   string // optional
	Audience string // optional
	TokenTTL time.Duration
}

const DefaultTokenTTL = 12 * time.Hour

// IssueStaffToken signs an HS256 token that StaffAuth with the same options accepts.
func IssueStaffToken(opts JWTOptions, subject, role, restaurantID string, now time.Time) (string, time.Time, error) {
	if opts.Secret == "" {
		return "", time.Time{}, errors.New("jwt: secret is not set")
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	exp := now.Add(ttl)
	claims := StaffClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role:         role,
		RestaurantID: restaurantID,
	}
	if opts.Audience != "" {
		claims.Audience = jwt.ClaimStrings{opts.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(opts.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func unauthorized(c *gin.Context, reason, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
		Code:    utils.CodeUnauthorized,
		Reason:  reason,
		Message: msg,
	})
}

func StaffAuth(opts JWTOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, apiError{
				Code:    utils.CodeUnavailable,
				Reason:  "auth_not_configured",
				Message: "STAFF_JWT_SECRET is not set",
			})
			return
		}

		auth := c.GetHeader("Authorization")
		raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if !strings.HasPrefix(auth, "Bearer ") || raw == "" {
			unauthorized(c, "missing_token", "missing bearer token")
			return
		}

		claims := &StaffClaims{}
		parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
		if opts.Issuer != "" {
			parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
		}
		if opts.Audience != "" {
			parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
		}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(opts.Secret), nil
		}, parserOpts...)
		if err != nil || tok == nil || !tok.Valid {
			unauthorized(c, "invalid_token", "invalid token")
			return
		}

		if claims.Subject == "" {
			unauthorized(c, "missing_subject", "missing subject")
			return
		}
		role := strings.ToLower(strings.TrimSpace(claims.Role))
		if role == "" {
			role = "staff"
		}
		if claims.RestaurantID == "" && role != "admin" {
			unauthorized(c, "missing_restaurant", "token is not scoped to a restaurant")
			return
		}

		c.Set("staff_id", claims.Subject)
		c.Set("role", role)
		if claims.RestaurantID != "" {
			c.Set("restaurant_id", claims.RestaurantID)
		}
		c.Next()
	}
}
