package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"tolerance-journey/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	InternalTokenHeader = "X-Internal-Service-Token"
	sourceServiceKey    = "source_service"
)

// TokenVerifier проверяет межсервисный токен и возвращает его claims.
type TokenVerifier interface {
	VerifyInterServiceToken(ctx context.Context, tokenString string) (*jwt.RegisteredClaims, error)
}

// JWTVerifier проверяет HMAC-подписанные межсервисные токены.
type JWTVerifier struct {
	secret []byte
	logger *zap.Logger
}

// NewJWTVerifier создает верификатор. Пустой секрет - ошибка.
func NewJWTVerifier(secret string, logger *zap.Logger) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JWTVerifier{secret: []byte(secret), logger: logger.Named("JWTVerifier")}, nil
}

// VerifyInterServiceToken проверяет подпись, срок действия и наличие subject.
func (v *JWTVerifier) VerifyInterServiceToken(_ context.Context, tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, models.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, models.ErrTokenMalformed
		default:
			return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
		}
	}
	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject missing", models.ErrTokenInvalid)
	}
	return claims, nil
}

// InterServiceAuth защищает /internal маршруты межсервисным JWT.
func InterServiceAuth(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.With(zap.String("path", c.Request.URL.Path))

		tokenString := c.GetHeader(InternalTokenHeader)
		if tokenString == "" {
			log.Warn("Internal service token header missing")
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.APIError{Message: "Unauthorized: missing inter-service token"})
			return
		}

		claims, err := verifier.VerifyInterServiceToken(c.Request.Context(), tokenString)
		if err != nil {
			msg := "Unauthorized: invalid inter-service token"
			if errors.Is(err, models.ErrTokenExpired) {
				msg = "Unauthorized: inter-service token expired"
			}
			log.Warn("Inter-service token verification failed", zap.Error(err), zap.String("tokenSnippet", tokenSnippet(tokenString)))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.APIError{Message: msg})
			return
		}

		c.Set(sourceServiceKey, claims.Subject)
		log.Debug("Inter-service request authorized", zap.String("sourceService", claims.Subject))
		c.Next()
	}
}

func tokenSnippet(token string) string {
	if len(token) > 15 {
		return token[:15] + "..."
	}
	return token
}
