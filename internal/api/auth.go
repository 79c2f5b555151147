package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// jarvisClaims is the JWT payload issued on a successful device-secret
// exchange (spec §6 POST /api/jarvis/auth).
type jarvisClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

const jarvisCookieName = "orchcore_session"

// issueJarvisToken signs a jarvisClaims JWT for userID, valid for ttl
// (spec §6: "session cookie + bearer JWT (7-day)"; the duration itself
// comes from auth.tokenDuration so deployments can tune it).
func issueJarvisToken(jwtSecret, userID string, ttl time.Duration) (string, error) {
	claims := jarvisClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID,
		},
		UserID: userID,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(jwtSecret))
}

// AuthDeviceSecret handles POST /api/jarvis/auth: exchanges the
// deployment's configured device secret for a session cookie and bearer
// JWT, both bound to the jarvis system user (spec §3: "jarvis@system.local
// owns system-initiated runs; its id is discovered, not hardcoded").
func (s *Server) AuthDeviceSecret(c *gin.Context) {
	var req jarvisAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.DeviceSecret), []byte(s.deviceSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid device secret"})
		return
	}

	jarvisUser, err := s.repos.Users.EnsureJarvisSystemUser(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	ttl := s.tokenDuration
	token, err := issueJarvisToken(s.jwtSecret, jarvisUser.ID, ttl)
	if err != nil {
		writeError(c, err)
		return
	}

	c.SetCookie(jarvisCookieName, token, int(ttl.Seconds()), "/", "", true, true)
	c.JSON(http.StatusOK, jarvisAuthResponse{Token: token})
}

// RequireJarvisAuth authenticates a request via the `Authorization: Bearer`
// header, the session cookie, or a `?token=` query parameter (spec §6 SSE
// specifics: "session cookie ... or a ?token= query parameter; the same
// user identity applies to both transports"), and stores the resolved
// user id in the gin context under "user_id".
func (s *Server) RequireJarvisAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			if cookie, err := c.Cookie(jarvisCookieName); err == nil {
				tokenStr = cookie
			}
		}
		if tokenStr == "" {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
			return
		}

		claims := &jarvisClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
			return []byte(s.jwtSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return ""
	}
	return strings.TrimPrefix(authz, prefix)
}

// userIDFrom reads the authenticated user id set by RequireJarvisAuth.
func userIDFrom(c *gin.Context) string {
	v, _ := c.Get("user_id")
	id, _ := v.(string)
	return id
}
