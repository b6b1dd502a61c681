package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/clinic"
)

// ownedClinic loads a clinic the caller may manage. Clinics of other
// tenants or doctors are reported as missing.
func ownedClinic(svc *clinic.Service, r *http.Request, id uuid.UUID) (*clinic.Clinic, error) {
	c, err := svc.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	who := caller(r)
	switch who.Role {
	case auth.RoleAdmin:
		if !sameID(who.AdminID, c.AdminID) {
			return nil, clinic.ErrNotFound
		}
	case auth.RoleDoctor:
		if c.DoctorID == nil || !sameID(who.DoctorID, *c.DoctorID) {
			return nil, clinic.ErrNotFound
		}
	}
	return c, nil
}

func listClinicsHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who := caller(r)
		var f clinic.Filter
		var err error

		if f.DoctorID, err = actingDoctor(who, r.URL.Query().Get("doctor_id")); err != nil {
			handleError(w, r, err)
			return
		}
		if who.Role != auth.RoleDoctor {
			if f.AdminID, err = actingAdmin(who, r.URL.Query().Get("admin_id")); err != nil {
				handleError(w, r, err)
				return
			}
		}

		clinics, err := svc.List(r.Context(), f)
		if err != nil {
			handleError(w, r, err)
			return
		}
		out := make([]ClinicResponse, 0, len(clinics))
		for _, c := range clinics {
			out = append(out, toClinicResponse(c))
		}
		writeJSON(w, http.StatusOK, map[string]any{"clinics": out})
	}
}

func createClinicHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateClinicRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		who := caller(r)

		adminID, err := actingAdmin(who, req.AdminID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		doctorID, err := actingDoctor(who, req.DoctorID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		create := clinic.CreateRequest{
			AdminID:  adminID,
			DoctorID: doctorID,
			Name:     req.Name,
			Phone:    req.Phone,
			Location: req.Location,
			Status:   clinic.Status(req.Status),
		}
		for i, item := range req.Schedule {
			in, err := toScheduleInput(item)
			if err != nil {
				handleError(w, r, fmt.Errorf("schedule[%d]: %w", i, err))
				return
			}
			create.Schedule = append(create.Schedule, in)
		}

		c, err := svc.Create(r.Context(), create)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toClinicResponse(*c))
	}
}

func getClinicHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			handleError(w, r, err)
			return
		}
		c, err := ownedClinic(svc, r, id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toClinicResponse(*c))
	}
}

func updateClinicHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			handleError(w, r, err)
			return
		}
		var req UpdateClinicRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if _, err := ownedClinic(svc, r, id); err != nil {
			handleError(w, r, err)
			return
		}

		patch := clinic.Patch{Name: req.Name, Phone: req.Phone, Location: req.Location}
		if req.Status != nil {
			st := clinic.Status(*req.Status)
			patch.Status = &st
		}

		c, err := svc.Update(r.Context(), id, patch)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toClinicResponse(*c))
	}
}

func deleteClinicHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if _, err := ownedClinic(svc, r, id); err != nil {
			handleError(w, r, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
