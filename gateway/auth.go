package gateway

import (
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid   = errors.New("gateway: token invalid")
	ErrClaimsMissing  = errors.New("gateway: required claims missing")
	ErrNoVerifyingKey = errors.New("gateway: no verifying key configured")
)

// Identity is what a verified token asserts about the caller.
type Identity struct {
	PlayerID   string
	OperatorID string
}

// AuthGateway verifies session tokens presented at upgrade time.
type AuthGateway interface {
	Verify(token string) (Identity, error)
}

// JWTVerifier accepts RS256 and EdDSA signed tokens. The player identity
// comes from the "playerId" claim, falling back to "sub"; the operator from
// "operatorId".
type JWTVerifier struct {
	rsaKey *rsa.PublicKey
	edKey  ed25519.PublicKey
	parser *jwt.Parser
}

func NewJWTVerifier(rsaKey *rsa.PublicKey, edKey ed25519.PublicKey) *JWTVerifier {
	return &JWTVerifier{
		rsaKey: rsaKey,
		edKey:  edKey,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"RS256", "EdDSA"})),
	}
}

// ParseRSAPublicKey loads a PEM-encoded RSA public key.
func ParseRSAPublicKey(pem []byte) (*rsa.PublicKey, error) {
	return jwt.ParseRSAPublicKeyFromPEM(pem)
}

// ParseEdPublicKey loads a PEM-encoded Ed25519 public key.
func ParseEdPublicKey(pem []byte) (ed25519.PublicKey, error) {
	key, err := jwt.ParseEdPublicKeyFromPEM(pem)
	if err != nil {
		return nil, err
	}
	ed, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("gateway: not an ed25519 key")
	}
	return ed, nil
}

func (v *JWTVerifier) Verify(token string) (Identity, error) {
	tok, err := v.parser.Parse(token, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodRSA:
			if v.rsaKey == nil {
				return nil, ErrNoVerifyingKey
			}
			return v.rsaKey, nil
		case *jwt.SigningMethodEd25519:
			if v.edKey == nil {
				return nil, ErrNoVerifyingKey
			}
			return v.edKey, nil
		default:
			return nil, fmt.Errorf("gateway: unexpected signing method %v", t.Header["alg"])
		}
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrTokenInvalid
	}
	playerID, _ := claims["playerId"].(string)
	if playerID == "" {
		playerID, _ = claims["sub"].(string)
	}
	operatorID, _ := claims["operatorId"].(string)
	if playerID == "" || operatorID == "" {
		return Identity{}, ErrClaimsMissing
	}
	return Identity{PlayerID: playerID, OperatorID: operatorID}, nil
}
