package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/timeofday"
)

func caller(r *http.Request) *auth.Identity {
	if id, ok := auth.FromContext(r.Context()); ok {
		return id
	}
	return &auth.Identity{}
}

func parseOptionalUUID(raw, field string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a valid UUID", errInvalidParam, field)
	}
	return &id, nil
}

func parseRequiredUUID(raw, field string) (uuid.UUID, error) {
	id, err := parseOptionalUUID(raw, field)
	if err != nil {
		return uuid.Nil, err
	}
	if id == nil {
		return uuid.Nil, fmt.Errorf("%w: %s is required", errInvalidParam, field)
	}
	return *id, nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return parseRequiredUUID(chi.URLParam(r, "id"), "id")
}

func parseOptionalDate(raw, field string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := timeofday.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", errInvalidParam, field)
	}
	return &d, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errInvalidParam, key)
	}
	return n, nil
}

// actingDoctor is the doctor a request acts for. Doctors always act for
// themselves; other callers name the doctor explicitly.
func actingDoctor(id *auth.Identity, requested string) (*uuid.UUID, error) {
	if id.Role == auth.RoleDoctor {
		if id.DoctorID == nil {
			return nil, fmt.Errorf("%w: token carries no doctor id", errForbidden)
		}
		return id.DoctorID, nil
	}
	return parseOptionalUUID(requested, "doctor_id")
}

// actingAdmin is the tenant a request acts for. Only SUPER_ADMIN may name
// another tenant.
func actingAdmin(id *auth.Identity, requested string) (*uuid.UUID, error) {
	if id.Role == auth.RoleSuperAdmin && requested != "" {
		return parseOptionalUUID(requested, "admin_id")
	}
	return id.AdminID, nil
}

func sameID(a *uuid.UUID, b uuid.UUID) bool {
	return a != nil && *a == b
}
