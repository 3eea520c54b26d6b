package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
	"go.uber.org/zap"
)

const authHeaderKey = "Authorization"
const authType = "Bearer"
const userPayloadKey = "user_payload"
const authTokenKey = "auth_token"

func authCheck(tokenService port.TokenService, logger *zap.Logger) gin.HandlerFunc {
	h := NewHandler(logger)
	return func(ctx *gin.Context) {
		header := ctx.Request.Header.Get(authHeaderKey)
		if len(header) == 0 {
			h.handleAbort(ctx, domain.ErrEmptyAuthorizationHeader)
			return
		}

		words := strings.Split(header, " ")
		if len(words) != 2 {
			h.handleAbort(ctx, domain.ErrInvalidAuthorizationHeader)
			return
		}
		if words[0] != authType {
			h.handleAbort(ctx, domain.ErrInvalidAuthorizationType)
			return
		}
		token := words[1]
		payload, err := tokenService.VerifyToken(token)
		if err != nil {
			h.handleAbort(ctx, domain.ErrInvalidToken)
			return
		}

		ctx.Set(userPayloadKey, payload)
		ctx.Set(authTokenKey, token)

		ctx.Next()
	}
}

func getAuthPayload(ctx *gin.Context) *port.TokenPayload {
	return ctx.MustGet(userPayloadKey).(*port.TokenPayload)
}

// getAuthToken returns the raw bearer token so it can be forwarded to
// collaborator services.
func getAuthToken(ctx *gin.Context) string {
	return ctx.MustGet(authTokenKey).(string)
}
