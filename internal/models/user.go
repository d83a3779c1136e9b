package models

import (
    "crypto/rand"
    "database/sql"
    "encoding/hex"
    "errors"
    "fmt"
    "math/big"

    "github.com/golang-jwt/jwt/v5"
    "golang.org/x/crypto/bcrypt"
    "golang.org/x/crypto/sha3"
)

const (
    bcryptCost     = 10
    shake256Length = 16 // bytes → 32 hex chars
    secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
    secretLength   = 64
)

// User represents an account that may authenticate to the control plane.
// Timezone and the 2FA columns exist in the schema but are not yet exposed
// through any operation.
type User struct {
    ID          int    `json:"id"`
    Username    string `json:"username"`
    Password    string `json:"password"`
    Active      bool   `json:"active"`
    Timezone    string `json:"timezone,omitempty"`
    TwoFASecret string `json:"-"`
    TwoFAStatus bool   `json:"twoFAStatus"`
}

type JWTClaims struct {
    Username string `json:"username"`
    H        string `json:"h"`
    jwt.RegisteredClaims
}

type UserStore struct {
    db *sql.DB
}

func NewUserStore(database *sql.DB) *UserStore {
    return &UserStore{db: database}
}

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
    var u User
    var timezone, twofaSecret sql.NullString
    var active, twofaStatus int
    if err := row.Scan(&u.ID, &u.Username, &u.Password, &active, &timezone, &twofaSecret, &twofaStatus); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, nil
        }
        return nil, err
    }
    u.Active = active != 0
    u.Timezone = timezone.String
    u.TwoFASecret = twofaSecret.String
    u.TwoFAStatus = twofaStatus != 0
    return &u, nil
}

const userColumns = "id, username, password, active, timezone, twofa_secret, twofa_status"

// FindByUsername returns the user or nil if not found or inactive.
func (s *UserStore) FindByUsername(username string) (*User, error) {
    row := s.db.QueryRow("SELECT "+userColumns+" FROM user WHERE username = ?", username)
    u, err := scanUser(row)
    if err != nil {
        return nil, fmt.Errorf("find user: %w", err)
    }
    if u != nil && !u.Active {
        return nil, nil
    }
    return u, nil
}

// FindByID returns the user or nil if not found.
func (s *UserStore) FindByID(id int) (*User, error) {
    row := s.db.QueryRow("SELECT "+userColumns+" FROM user WHERE id = ?", id)
    u, err := scanUser(row)
    if err != nil {
        return nil, fmt.Errorf("find user by id: %w", err)
    }
    return u, nil
}

// Count returns the number of users in the database.
func (s *UserStore) Count() (int, error) {
    var count int
    err := s.db.QueryRow("SELECT COUNT(*) FROM user").Scan(&count)
    if err != nil {
        return 0, fmt.Errorf("count users: %w", err)
    }
    return count, nil
}

// Create inserts a new user with a bcrypt-hashed password.
func (s *UserStore) Create(username, password string) (*User, error) {
    hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
    if err != nil {
        return nil, fmt.Errorf("hash password: %w", err)
    }

    res, err := s.db.Exec("INSERT INTO user (username, password, active) VALUES (?, ?, 1)", username, string(hash))
    if err != nil {
        return nil, fmt.Errorf("create user: %w", err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return nil, fmt.Errorf("create user: %w", err)
    }

    return &User{ID: int(id), Username: username, Password: string(hash), Active: true}, nil
}

// ChangePassword updates the user's password.
func (s *UserStore) ChangePassword(userID int, newPassword string) error {
    hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
    if err != nil {
        return fmt.Errorf("hash password: %w", err)
    }

    res, err := s.db.Exec("UPDATE user SET password = ? WHERE id = ?", string(hash), userID)
    if err != nil {
        return fmt.Errorf("change password: %w", err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return fmt.Errorf("change password: %w", err)
    }
    if n == 0 {
        return fmt.Errorf("user id %d not found", userID)
    }
    return nil
}

// VerifyPassword checks a plaintext password against the stored bcrypt hash.
func VerifyPassword(password, hash string) bool {
    return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether a stored bcrypt hash should be regenerated
// because its cost differs from the current bcryptCost. An unparseable hash
// also reports true — rehashing on next login repairs it.
func NeedsRehash(hash string) bool {
    cost, err := bcrypt.Cost([]byte(hash))
    if err != nil {
        return true
    }
    return cost != bcryptCost
}

// CreateJWT creates an HS256 JWT token for the user. The claims carry no
// expiration — session lifetime is governed by the password fingerprint
// check in VerifyJWT, not a clock.
func CreateJWT(user *User, secret string) (string, error) {
    claims := JWTClaims{
        Username: user.Username,
        H:        Shake256Hex(user.Password, shake256Length),
    }
    token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    return token.SignedString([]byte(secret))
}

// VerifyJWT parses and validates a JWT token. No reserved claim (exp, iat) is
// required or checked — the caller must separately confirm the password
// fingerprint still matches the current stored hash.
func VerifyJWT(tokenString, secret string) (*JWTClaims, error) {
    parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))

    token, err := parser.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
        return []byte(secret), nil
    })
    if err != nil {
        return nil, fmt.Errorf("invalid token: %w", err)
    }

    claims, ok := token.Claims.(*JWTClaims)
    if !ok || !token.Valid {
        return nil, fmt.Errorf("invalid token claims")
    }
    return claims, nil
}

// Shake256Hex computes SHAKE256 of data and returns the first `length` bytes as hex.
func Shake256Hex(data string, length int) string {
    if data == "" {
        return ""
    }
    h := sha3.NewShake256()
    h.Write([]byte(data))
    out := make([]byte, length)
    h.Read(out)
    return hex.EncodeToString(out)
}

// GenSecret generates a cryptographically random alphanumeric string.
func GenSecret(length int) (string, error) {
    b := make([]byte, length)
    for i := range b {
        n, err := rand.Int(rand.Reader, big.NewInt(int64(len(secretAlphabet))))
        if err != nil {
            return "", err
        }
        b[i] = secretAlphabet[n.Int64()]
    }
    return string(b), nil
}
