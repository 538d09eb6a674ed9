package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-attempt-service/internal/config"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "user_role"

	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

var ErrMissingToken = errors.New("missing bearer token")

// Authenticator resolves a bearer token into the caller identity.
type Authenticator interface {
	Authenticate(token string) (models.Identity, error)
}

// CasdoorAuthenticator verifies tokens issued by the Casdoor application.
type CasdoorAuthenticator struct{}

func NewCasdoorAuthenticator(cfg config.CasdoorConfig) *CasdoorAuthenticator {
	casdoorsdk.InitConfig(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Certificate,
		cfg.OrganizationName,
		cfg.ApplicationName,
	)
	return &CasdoorAuthenticator{}
}

func (CasdoorAuthenticator) Authenticate(token string) (models.Identity, error) {
	claims, err := casdoorsdk.ParseJwtToken(token)
	if err != nil {
		return models.Identity{}, err
	}

	userID := claims.User.Id
	if userID == "" {
		userID = claims.User.Owner + "/" + claims.User.Name
	}
	return models.Identity{UserID: userID, Role: roleOf(&claims.User)}, nil
}

// roleOf prefers an explicit role assignment, then the user tag, then the
// admin flag. Anyone else is a student.
func roleOf(user *casdoorsdk.User) models.UserRole {
	for _, r := range user.Roles {
		if r == nil {
			continue
		}
		if role := models.UserRole(strings.ToLower(r.Name)); role.IsValid() {
			return role
		}
	}
	if role := models.UserRole(strings.ToLower(user.Tag)); role.IsValid() {
		return role
	}
	if user.IsAdmin {
		return models.RoleAdmin
	}
	return models.RoleStudent
}

// AuthMiddleware requires a bearer token. The exam stream may pass it as
// ?token= since browsers cannot set headers on a websocket upgrade.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "User not authenticated",
				Details: ErrMissingToken.Error(),
			})
			return
		}

		identity, err := auth.Authenticate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Invalid token",
			})
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

// HeaderIdentityMiddleware trusts X-User-ID and X-User-Role. It is only
// installed when no identity provider is configured.
func HeaderIdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(headerUserID))
		if userID == "" {
			userID = strings.TrimSpace(c.Query("user_id"))
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "User not authenticated",
			})
			return
		}

		role := models.UserRole(strings.ToLower(c.GetHeader(headerUserRole)))
		if !role.IsValid() {
			role = models.RoleStudent
		}

		setIdentity(c, models.Identity{UserID: userID, Role: role})
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(c.Query("token"))
}

func setIdentity(c *gin.Context, identity models.Identity) {
	c.Set(ContextKeyUserID, identity.UserID)
	c.Set(ContextKeyRole, identity.Role)
}

// GetIdentity returns the caller resolved by the auth middleware.
func GetIdentity(c *gin.Context) (models.Identity, bool) {
	userID := c.GetString(ContextKeyUserID)
	if userID == "" {
		return models.Identity{}, false
	}
	role, _ := c.Get(ContextKeyRole)
	r, _ := role.(models.UserRole)
	return models.Identity{UserID: userID, Role: r}, true
}

// requireIdentity writes a 401 when the request carries no caller.
func requireIdentity(c *gin.Context) (models.Identity, bool) {
	identity, ok := GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
	}
	return identity, ok
}
