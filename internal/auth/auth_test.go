package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	doctor, admin := uuid.New(), uuid.New()

	tok, err := iss.Issue(Identity{UserID: "u-1", Role: RoleDoctor, DoctorID: &doctor, AdminID: &admin})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	id, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.UserID != "u-1" || id.Role != RoleDoctor {
		t.Fatalf("identity = %+v", id)
	}
	if id.DoctorID == nil || *id.DoctorID != doctor || id.AdminID == nil || *id.AdminID != admin {
		t.Fatalf("id claims lost: %+v", id)
	}
	if id.PatientID != nil {
		t.Fatal("absent patient id should stay nil")
	}
	if id.IsStaff() {
		t.Fatal("doctor is not staff")
	}
}

func TestParseRejects(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)

	other := NewIssuer("other-secret", time.Hour)
	foreign, _ := other.Issue(Identity{UserID: "u", Role: RoleAdmin})
	if _, err := iss.Parse(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: got %v", err)
	}

	expired := NewIssuer("test-secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.Issue(Identity{UserID: "u", Role: RoleAdmin})
	if _, err := iss.Parse(old); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired: got %v", err)
	}

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u", Role: "ROOT"})
	signed, _ := badRole.SignedString([]byte("test-secret"))
	if _, err := iss.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("unknown role: got %v", err)
	}

	badID := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u", Role: RolePatient, PatientID: "nope"})
	signed, _ = badID.SignedString([]byte("test-secret"))
	if _, err := iss.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("malformed id: got %v", err)
	}

	if _, err := iss.Parse("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: got %v", err)
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?token=q", nil)
	if got := TokenFromRequest(r); got != "q" {
		t.Errorf("query token = %q", got)
	}

	r.Header.Set("Authorization", "Bearer h")
	if got := TokenFromRequest(r); got != "h" {
		t.Errorf("bearer token = %q", got)
	}

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "c"})
	if got := TokenFromRequest(r); got != "c" {
		t.Errorf("cookie token = %q", got)
	}

	if got := TokenFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)); got != "" {
		t.Errorf("no token = %q", got)
	}
}

func TestMiddlewareAndRequireRole(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)

	var seen *Identity
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := iss.Middleware(RequireRole(RoleAdmin, RoleSuperAdmin)(final))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}

	patientTok, _ := iss.Issue(Identity{UserID: "p", Role: RolePatient})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+patientTok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient: %d", rec.Code)
	}

	adminTok, _ := iss.Issue(Identity{UserID: "a", Role: RoleAdmin})
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: adminTok})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin: %d", rec.Code)
	}
	if seen == nil || seen.UserID != "a" || !seen.IsStaff() {
		t.Fatalf("identity in context = %+v", seen)
	}
}
