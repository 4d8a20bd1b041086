package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
)

const contextTokenKey = "userToken"

var errInvalidClaims = errors.New("token does not identify an actor")

// Claims represents the authorization claims transmitted via a JWT.
// The subject is the user id; every caller acts for exactly one institution.
type Claims struct {
	jwt.StandardClaims
	Role          attendance.Role `json:"role"`
	InstitutionID int64           `json:"institution_id"`
}

func NewClaims(conf *core.Config, userID string, role attendance.Role, institutionID int64) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   userID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Role:          role,
		InstitutionID: institutionID,
	}
}

func (c Claims) Valid() error {
	if err := c.StandardClaims.Valid(); err != nil {
		return err
	}
	if c.Subject == "" || !c.Role.Valid() || c.InstitutionID <= 0 {
		return errInvalidClaims
	}
	return nil
}

func (c Claims) Actor() attendance.Actor {
	return attendance.Actor{UserID: c.Subject, Role: c.Role, InstitutionID: c.InstitutionID}
}

func newJWTConfig(secret string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secret),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextActor(ctx echo.Context) (attendance.Actor, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return attendance.Actor{}, err
	}
	return claims.Actor(), nil
}
