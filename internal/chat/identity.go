package chat

import (
	"fmt"
	"log"
	"time"

	"github.com/09OndaProject/onda-chat/internal/database"
	"github.com/09OndaProject/onda-chat/internal/types"
	"github.com/golang-jwt/jwt"
)

const (
	userIdClaim = "user-id"
	expClaim    = "exp"
)

// Identity is the outcome of resolving a connection's credential. It is
// either an authenticated user or anonymous; callers must branch on User()
// rather than inspect fields.
type Identity struct {
	user          types.User
	authenticated bool
}

func Authenticated(user types.User) Identity {
	return Identity{user: user, authenticated: true}
}

func Anonymous() Identity {
	return Identity{}
}

// User returns the resolved user and true, or the zero user and false for
// an anonymous identity.
func (i Identity) User() (types.User, bool) {
	return i.user, i.authenticated
}

func (i Identity) IsAnonymous() bool {
	return !i.authenticated
}

// TokenResolver maps a raw bearer credential to an Identity. Any failure
// along the way (missing token, bad signature, expired, unknown or deleted
// subject) degrades to Anonymous; Resolve never returns an error.
type TokenResolver struct {
	signingKey []byte
	db         database.ChatRepository
	log        *log.Logger
}

func NewTokenResolver(signingKey []byte, db database.ChatRepository, logger *log.Logger) *TokenResolver {
	return &TokenResolver{
		signingKey: signingKey,
		db:         db,
		log:        logger,
	}
}

func (tr *TokenResolver) Resolve(tokenString string) Identity {
	if tokenString == "" {
		return Anonymous()
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tr.signingKey, nil
	})
	if err != nil || !token.Valid {
		tr.log.Printf("resolve token: %v", err)
		return Anonymous()
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Anonymous()
	}

	rawUserId, ok := claims[userIdClaim].(float64)
	if !ok {
		return Anonymous()
	}

	user, err := tr.db.GetUserById(int(rawUserId))
	if err != nil {
		tr.log.Printf("resolve token subject %d: %v", int(rawUserId), err)
		return Anonymous()
	}

	if user.IsDeleted {
		return Anonymous()
	}

	return Authenticated(types.User{
		Id:        user.Id,
		Email:     user.Email,
		Nickname:  user.Nickname,
		CreatedAt: user.CreatedAt,
	})
}

// NewSessionToken mints the HS256 bearer token accepted by TokenResolver.
func NewSessionToken(userId int, signingKey []byte, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(signingKey)
}
