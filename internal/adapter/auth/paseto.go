package auth

import (
	"aidanwoods.dev/go-paseto"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/config"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
)

// PasetoVerifier validates bearer tokens issued by the external auth service.
// The symmetric key is shared through configuration; tokens are never issued
// here.
type PasetoVerifier struct {
	parser *paseto.Parser
	key    paseto.V4SymmetricKey
}

func New(cfg *config.Auth) (port.TokenService, error) {
	key, err := paseto.V4SymmetricKeyFromHex(cfg.SymmetricKey)
	if err != nil {
		return nil, err
	}
	parser := paseto.NewParser()

	return &PasetoVerifier{
		parser: &parser,
		key:    key,
	}, nil
}

func (p *PasetoVerifier) VerifyToken(token string) (*port.TokenPayload, error) {
	parsedToken, err := p.parser.ParseV4Local(p.key, token, nil)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	payload := port.TokenPayload{}
	err = parsedToken.Get("payload", &payload)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	return &payload, nil
}
