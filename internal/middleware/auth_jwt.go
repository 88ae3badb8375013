package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs-labo46/ec-settlement/internal/config"
	"github.com/rs-labo46/ec-settlement/internal/domain/model"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey       = "user_id"       // int64
	CtxUserRoleKey     = "user_role"     // string
	CtxTokenVersionKey = "token_version" // int
)

var errInvalidClaims = errors.New("invalid claims")

// アクセストークンから取り出した呼び出し元
type Principal struct {
	UserID       int64
	Role         model.Role
	TokenVersion int
}

// Bearerトークン（HS256）を検証してPrincipalをcontextに入れる。
// トークンの発行は別サービス。ここでは検証だけ。
func AuthJWT(cfg config.Config) echo.MiddlewareFunc {
	secret := []byte(cfg.JWTSecret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return deny(c, http.StatusUnauthorized, "unauthorized")
			}

			p, err := parsePrincipal(parser, raw, secret)
			if err != nil {
				return deny(c, http.StatusUnauthorized, "unauthorized")
			}

			setPrincipal(c, p)
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// sub / role / tv を読む。expはParserが見る。
func parsePrincipal(parser *jwt.Parser, raw string, secret []byte) (Principal, error) {
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}); err != nil {
		return Principal{}, err
	}

	userID, err := claimInt64(claims["sub"])
	if err != nil || userID <= 0 {
		return Principal{}, errInvalidClaims
	}
	role, _ := claims["role"].(string)
	if !model.Role(role).Valid() {
		return Principal{}, errInvalidClaims
	}
	tv, err := claimInt64(claims["tv"])
	if err != nil || tv < 0 {
		return Principal{}, errInvalidClaims
	}

	return Principal{UserID: userID, Role: model.Role(role), TokenVersion: int(tv)}, nil
}

// JSONの数値はfloat64、文字列で来る発行元もある
func claimInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case json.Number:
		return t.Int64()
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, errInvalidClaims
	}
}

func setPrincipal(c echo.Context, p Principal) {
	c.Set(CtxUserIDKey, p.UserID)
	c.Set(CtxUserRoleKey, string(p.Role))
	c.Set(CtxTokenVersionKey, p.TokenVersion)
}

// AuthJWTの後でだけ取れる
func principalFrom(c echo.Context) (Principal, bool) {
	id, ok := c.Get(CtxUserIDKey).(int64)
	if !ok || id <= 0 {
		return Principal{}, false
	}
	role, _ := c.Get(CtxUserRoleKey).(string)
	tv, ok := c.Get(CtxTokenVersionKey).(int)
	if !ok || tv < 0 {
		return Principal{}, false
	}
	return Principal{UserID: id, Role: model.Role(role), TokenVersion: tv}, true
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg, Code: codeFor(msg)}
}

func deny(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorJSON(msg))
}

// usecaseのエラーコードと揃える
func codeFor(msg string) string {
	switch msg {
	case "unauthorized":
		return "unauthorized"
	case "rate limited":
		return "rate_limited"
	default:
		return "forbidden"
	}
}
