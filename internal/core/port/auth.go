package port

type TokenPayload struct {
	UserID uint64
	Email  string
}

// TokenService verifies bearer tokens issued by the external auth service.
//
//go:generate mockgen -source=auth.go -destination=mock/auth.go -package=mock
type TokenService interface {
	VerifyToken(token string) (*TokenPayload, error)
}
