package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"globetrotter/planner"
)

const userIDKey = "user_id"

// devUserHeader names the caller directly, accepted in dev mode only.
const devUserHeader = "X-User-ID"

func CorsConfig() cors.Config {
	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	corsConf.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConf.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	corsConf.AllowCredentials = true
	corsConf.MaxAge = 1 * time.Hour
	return corsConf
}

func limiterMiddleWare() gin.HandlerFunc {
	rate := limiter.Rate{
		Period: 1 * time.Hour,
		Limit:  1000,
	}
	return mgin.NewMiddleware(limiter.New(memory.NewStore(), rate))
}

func setupMiddlewares(r *gin.Engine, isDev bool) {
	r.Use(limiterMiddleWare())
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(cors.New(CorsConfig()))
	// compressing would break the websocket upgrade
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`.*/events$`})))
	r.Use(secure.New(secure.Config{
		IsDevelopment:        isDev,
		STSSeconds:           31536000,
		STSIncludeSubdomains: true,
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		ReferrerPolicy:       "strict-origin-when-cross-origin",
	}))
}

// userClaims is the token payload issued by the session service.
type userClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// AuthMiddleware resolves the caller from a bearer token (or the access_token
// query parameter, for browsers opening a websocket). Requests without a token
// continue as planner.Anonymous; a bad token is rejected.
func AuthMiddleware(secret []byte, isDev bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(userIDKey, planner.Anonymous)

		if isDev {
			if raw := c.GetHeader(devUserHeader); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid " + devUserHeader})
					return
				}
				c.Set(userIDKey, id)
				c.Next()
				return
			}
		}

		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		id, err := parseUserToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("access_token")
}

func parseUserToken(secret []byte, raw string) (uuid.UUID, error) {
	if len(secret) == 0 {
		return uuid.Nil, errors.New("token authentication is not configured")
	}
	claims := &userClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, errors.New("invalid token")
	}
	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	id, err := uuid.Parse(subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errors.New("token carries no user id")
	}
	return id, nil
}

func currentUser(c *gin.Context) uuid.UUID {
	if id, ok := c.Get(userIDKey); ok {
		if uid, ok := id.(uuid.UUID); ok {
			return uid
		}
	}
	return planner.Anonymous
}
