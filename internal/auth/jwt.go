// Package auth resolves the caller identity of a request from an HS256
// session token.
package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleDoctor     Role = "DOCTOR"
	RolePatient    Role = "PATIENT"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidToken    = errors.New("invalid token")
)

// Identity is the resolved caller of a request.
type Identity struct {
	UserID    string
	Role      Role
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	AdminID   *uuid.UUID
}

// IsStaff reports whether the caller manages a tenant rather than acting
// as one doctor or patient.
func (i Identity) IsStaff() bool {
	return i.Role == RoleSuperAdmin || i.Role == RoleAdmin
}

type Claims struct {
	UserID    string `json:"userId"`
	Role      Role   `json:"role"`
	PatientID string `json:"patientId,omitempty"`
	DoctorID  string `json:"doctorId,omitempty"`
	AdminID   string `json:"adminId,omitempty"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a session token for id.
func (iss *Issuer) Issue(id Identity) (string, error) {
	now := iss.now()
	claims := Claims{
		UserID: id.UserID,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(iss.ttl)),
		},
	}
	if id.PatientID != nil {
		claims.PatientID = id.PatientID.String()
	}
	if id.DoctorID != nil {
		claims.DoctorID = id.DoctorID.String()
	}
	if id.AdminID != nil {
		claims.AdminID = id.AdminID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(iss.secret)
}

// Parse validates a token and returns the identity it carries.
func (iss *Issuer) Parse(tokenStr string) (*Identity, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return iss.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(iss.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, ErrInvalidToken
	}

	switch c.Role {
	case RoleSuperAdmin, RoleAdmin, RoleDoctor, RolePatient:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}

	id := &Identity{UserID: c.UserID, Role: c.Role}
	if id.PatientID, err = optionalUUID(c.PatientID); err != nil {
		return nil, err
	}
	if id.DoctorID, err = optionalUUID(c.DoctorID); err != nil {
		return nil, err
	}
	if id.AdminID, err = optionalUUID(c.AdminID); err != nil {
		return nil, err
	}
	return id, nil
}

func optionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed id claim", ErrInvalidToken)
	}
	return &id, nil
}
