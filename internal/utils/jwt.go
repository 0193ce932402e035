package utils // package utils provides helper functions for token verification

import (
    "errors"  // sentinel errors for verification failures
    "fmt"     // formatting claim conversion errors
    "strconv" // parsing string-encoded subjects
    "time"    // expirations for issued test tokens

    "github.com/golang-jwt/jwt/v5" // JWT library for parsing and creating tokens
)

// Claims is the normalized identity extracted from a verified access
// token.  The auth service issues tokens with the user ID in the
// standard subject claim and an application role; the coordinator only
// needs those two.
type Claims struct {
    UserID uint64 // numeric user identity from the "sub" claim
    Role   string // application role from the "role" claim (may be empty)
}

// ErrInvalidToken is returned for any token that fails signature,
// expiry or claim validation.
var ErrInvalidToken = errors.New("invalid token")

// VerifyAccessToken parses and validates an HS256 JWT and returns the
// normalized claims.  It rejects tokens signed with any other method
// and tokens whose subject does not convert to a positive integer,
// regardless of whether the issuer encoded it as a number or a string.
func VerifyAccessToken(secret, raw string) (Claims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        // Type assert the signing method to HMAC; reject others.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        // Return the secret bytes used to sign the token.
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return Claims{}, ErrInvalidToken
    }
    mc, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return Claims{}, ErrInvalidToken
    }
    userID, err := subjectToUserID(mc["sub"])
    if err != nil {
        return Claims{}, err
    }
    role, _ := mc["role"].(string)
    return Claims{UserID: userID, Role: role}, nil
}

// subjectToUserID converts the subject claim to a uint64.  JSON numbers
// arrive as float64; some issuers encode the subject as a string.
func subjectToUserID(sub interface{}) (uint64, error) {
    switch v := sub.(type) {
    case float64:
        if v <= 0 {
            return 0, fmt.Errorf("%w: non-positive subject", ErrInvalidToken)
        }
        return uint64(v), nil
    case string:
        n, err := strconv.ParseUint(v, 10, 64)
        if err != nil || n == 0 {
            return 0, fmt.Errorf("%w: non-numeric subject %q", ErrInvalidToken, v)
        }
        return n, nil
    default:
        return 0, fmt.Errorf("%w: missing subject", ErrInvalidToken)
    }
}

// NewAccessToken builds and signs an HS256 JWT for a user.  Issuing
// tokens in production is the auth service's job; local development and
// tests need a way to mint credentials accepted by JWTAuth.
func NewAccessToken(secret string, userID uint64, role string, ttl time.Duration) (string, error) {
    now := time.Now().UTC()
    claims := jwt.MapClaims{
        "sub":  userID,
        "role": role,
        "exp":  now.Add(ttl).Unix(),
        "iat":  now.Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    return t.SignedString([]byte(secret))
}
