package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
)

// visibleTo reports whether the caller may see a.
func visibleTo(who *auth.Identity, a *appointment.Appointment) bool {
	switch who.Role {
	case auth.RoleSuperAdmin:
		return true
	case auth.RoleAdmin:
		return sameID(who.AdminID, a.AdminID)
	case auth.RoleDoctor:
		return sameID(who.DoctorID, a.DoctorID)
	case auth.RolePatient:
		return sameID(who.PatientID, a.PatientID)
	}
	return false
}

func visibleAppointment(svc *appointment.Service, r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
	a, err := svc.GetAppointment(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !visibleTo(caller(r), a) {
		return nil, appointment.ErrAppointmentNotFound
	}
	return a, nil
}

func bookingTarget(req CreateAppointmentRequest) (appointment.Target, error) {
	date, err := parseOptionalDate(req.Date, "date")
	if err != nil {
		return nil, err
	}
	if date == nil {
		return nil, fmt.Errorf("%w: date is required", errInvalidParam)
	}

	switch {
	case req.SlotID != "":
		slotID, err := parseRequiredUUID(req.SlotID, "slot_id")
		if err != nil {
			return nil, err
		}
		return appointment.SlotTarget{SlotID: slotID, Date: *date, StartTime: req.StartTime, EndTime: req.EndTime}, nil
	case req.StartTime != "" && req.EndTime != "":
		return appointment.RangeTarget{Date: *date, StartTime: req.StartTime, EndTime: req.EndTime}, nil
	case req.Time != "":
		return appointment.GeneratedTarget{Date: *date, Time: req.Time}, nil
	}
	return nil, fmt.Errorf("%w: one of slot_id, start_time with end_time, or time is required", errInvalidParam)
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		who := caller(r)

		adminID, err := actingAdmin(who, req.AdminID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		// Patients book into the tenant named in the request.
		if adminID == nil {
			if adminID, err = parseOptionalUUID(req.AdminID, "admin_id"); err != nil {
				handleError(w, r, err)
				return
			}
		}
		if adminID == nil {
			handleError(w, r, fmt.Errorf("%w: admin_id is required", errInvalidParam))
			return
		}
		doctorID, err := actingDoctor(who, req.DoctorID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if doctorID == nil {
			handleError(w, r, fmt.Errorf("%w: doctor_id is required", errInvalidParam))
			return
		}
		clinicID, err := parseRequiredUUID(req.ClinicID, "clinic_id")
		if err != nil {
			handleError(w, r, err)
			return
		}
		target, err := bookingTarget(req)
		if err != nil {
			handleError(w, r, err)
			return
		}

		a, err := svc.CreateAppointment(r.Context(), appointment.CreateRequest{
			AdminID:  *adminID,
			DoctorID: *doctorID,
			ClinicID: clinicID,
			Patient: appointment.PatientRef{
				Phone:  req.PatientPhone,
				ChatID: req.ChatID,
				Name:   req.PatientName,
			},
			Target: target,
			Notes:  req.Notes,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*a))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		who := caller(r)
		var f appointment.ListFilter
		var err error

		if f.DoctorID, err = actingDoctor(who, q.Get("doctor_id")); err != nil {
			handleError(w, r, err)
			return
		}
		switch who.Role {
		case auth.RolePatient:
			if who.PatientID == nil {
				handleError(w, r, fmt.Errorf("%w: token carries no patient id", errForbidden))
				return
			}
			f.PatientID = who.PatientID
		case auth.RoleAdmin, auth.RoleSuperAdmin:
			if f.AdminID, err = actingAdmin(who, q.Get("admin_id")); err != nil {
				handleError(w, r, err)
				return
			}
			if f.PatientID, err = parseOptionalUUID(q.Get("patient_id"), "patient_id"); err != nil {
				handleError(w, r, err)
				return
			}
		default:
			if f.PatientID, err = parseOptionalUUID(q.Get("patient_id"), "patient_id"); err != nil {
				handleError(w, r, err)
				return
			}
		}
		if f.ClinicID, err = parseOptionalUUID(q.Get("clinic_id"), "clinic_id"); err != nil {
			handleError(w, r, err)
			return
		}
		if f.Date, err = parseOptionalDate(q.Get("date"), "date"); err != nil {
			handleError(w, r, err)
			return
		}
		if raw := q.Get("status"); raw != "" {
			st, err := appointment.ParseStatus(raw)
			if err != nil {
				handleError(w, r, err)
				return
			}
			f.Status = &st
		}
		if f.Limit, err = queryInt(r, "limit"); err != nil {
			handleError(w, r, err)
			return
		}
		if f.Offset, err = queryInt(r, "offset"); err != nil {
			handleError(w, r, err)
			return
		}

		list, err := svc.ListAppointments(r.Context(), f)
		if err != nil {
			handleError(w, r, err)
			return
		}
		out := make([]AppointmentResponse, 0, len(list))
		for _, a := range list {
			out = append(out, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			handleError(w, r, err)
			return
		}
		a, err := visibleAppointment(svc, r, id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*a))
	}
}

func updateAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			handleError(w, r, err)
			return
		}
		var req UpdateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Status) == "" {
			handleError(w, r, fmt.Errorf("%w: status is required", errInvalidParam))
			return
		}
		if _, err := visibleAppointment(svc, r, id); err != nil {
			handleError(w, r, err)
			return
		}

		a, err := svc.UpdateStatus(r.Context(), id, req.Status)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*a))
	}
}

func deleteAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if _, err := visibleAppointment(svc, r, id); err != nil {
			handleError(w, r, err)
			return
		}
		if err := svc.DeleteAppointment(r.Context(), id); err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
