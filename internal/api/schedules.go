package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/schedule"
	"github.com/hackgods/clinic-appointment-booking/internal/slots"
)

func generateSlotsHandler(gen *slots.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		clinicID, err := parseOptionalUUID(q.Get("clinic_id"), "clinic_id")
		if err != nil {
			handleError(w, r, err)
			return
		}
		date, err := parseOptionalDate(q.Get("date"), "date")
		if err != nil {
			handleError(w, r, err)
			return
		}
		doctorID, err := actingDoctor(caller(r), q.Get("doctor_id"))
		if err != nil {
			handleError(w, r, err)
			return
		}

		query := slots.Query{DoctorID: doctorID}
		if clinicID != nil {
			query.ClinicID = *clinicID
		}
		if date != nil {
			query.Date = *date
		}

		res, err := gen.Generate(r.Context(), query)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SlotsResponse{Slots: res.Slots, SlotDuration: res.SlotDuration})
	}
}

func toScheduleInput(in ScheduleInput) (schedule.Input, error) {
	if in.DayOfWeek == nil {
		return schedule.Input{}, fmt.Errorf("%w: day_of_week is required", errInvalidParam)
	}
	from, err := parseOptionalDate(in.EffectiveFrom, "effective_from")
	if err != nil {
		return schedule.Input{}, err
	}
	to, err := parseOptionalDate(in.EffectiveTo, "effective_to")
	if err != nil {
		return schedule.Input{}, err
	}
	return schedule.Input{
		DayOfWeek:     *in.DayOfWeek,
		StartTime:     in.StartTime,
		EndTime:       in.EndTime,
		SlotDuration:  in.SlotDuration,
		EffectiveFrom: from,
		EffectiveTo:   to,
	}, nil
}

func listSchedulesHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var f schedule.Filter
		var err error

		if f.DoctorID, err = actingDoctor(caller(r), q.Get("doctor_id")); err != nil {
			handleError(w, r, err)
			return
		}
		if f.ClinicID, err = parseOptionalUUID(q.Get("clinic_id"), "clinic_id"); err != nil {
			handleError(w, r, err)
			return
		}
		if q.Get("day_of_week") != "" {
			day, err := queryInt(r, "day_of_week")
			if err != nil {
				handleError(w, r, err)
				return
			}
			f.DayOfWeek = &day
		}

		entries, err := svc.List(r.Context(), f)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"schedules": toScheduleResponses(entries)})
	}
}

// scheduleOwner resolves the doctor and tenant a schedule write acts for.
func scheduleOwner(id *auth.Identity, doctorRaw, adminRaw string) (uuid.UUID, *uuid.UUID, error) {
	doctorID, err := actingDoctor(id, doctorRaw)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if doctorID == nil {
		return uuid.Nil, nil, fmt.Errorf("%w: doctor_id is required", errInvalidParam)
	}
	adminID, err := actingAdmin(id, adminRaw)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return *doctorID, adminID, nil
}

func createScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateScheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doctorID, adminID, err := scheduleOwner(caller(r), req.DoctorID, req.AdminID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		clinicID, err := parseOptionalUUID(req.ClinicID, "clinic_id")
		if err != nil {
			handleError(w, r, err)
			return
		}
		in, err := toScheduleInput(req.ScheduleInput)
		if err != nil {
			handleError(w, r, err)
			return
		}

		e, err := svc.Create(r.Context(), schedule.CreateRequest{
			DoctorID: doctorID,
			ClinicID: clinicID,
			AdminID:  adminID,
			Input:    in,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toScheduleResponse(*e))
	}
}

func bulkSchedulesHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkScheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doctorID, adminID, err := scheduleOwner(caller(r), req.DoctorID, req.AdminID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		clinicID, err := parseOptionalUUID(req.ClinicID, "clinic_id")
		if err != nil {
			handleError(w, r, err)
			return
		}

		bulk := schedule.BulkRequest{DoctorID: doctorID, ClinicID: clinicID, AdminID: adminID}
		for i, item := range req.Schedules {
			in, err := toScheduleInput(item)
			if err != nil {
				handleError(w, r, fmt.Errorf("schedules[%d]: %w", i, err))
				return
			}
			var ref *uuid.UUID
			if item.ScheduleID != nil {
				if ref, err = parseOptionalUUID(*item.ScheduleID, "schedule_id"); err != nil {
					handleError(w, r, err)
					return
				}
			}
			bulk.Items = append(bulk.Items, schedule.BulkItem{ScheduleID: ref, Input: in})
		}

		entries, err := svc.ReplaceBulk(r.Context(), bulk)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"schedules": toScheduleResponses(entries)})
	}
}

// ownedSchedule loads an entry and hides it from doctors who do not own it.
func ownedSchedule(svc *schedule.Service, r *http.Request, id uuid.UUID) (*schedule.Entry, error) {
	e, err := svc.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	who := caller(r)
	if who.Role == auth.RoleDoctor && !sameID(who.DoctorID, e.DoctorID) {
		return nil, schedule.ErrNotFound
	}
	if who.Role == auth.RoleAdmin && e.AdminID != nil && !sameID(who.AdminID, *e.AdminID) {
		return nil, schedule.ErrNotFound
	}
	return e, nil
}

func updateScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			handleError(w, r, err)
			return
		}
		var req UpdateScheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if _, err := ownedSchedule(svc, r, id); err != nil {
			handleError(w, r, err)
			return
		}

		patch := schedule.Patch{
			DayOfWeek:    req.DayOfWeek,
			StartTime:    req.StartTime,
			EndTime:      req.EndTime,
			SlotDuration: req.SlotDuration,
		}
		if req.ClinicID != nil {
			if patch.ClinicID, err = parseOptionalUUID(*req.ClinicID, "clinic_id"); err != nil {
				handleError(w, r, err)
				return
			}
		}
		for _, d := range []struct {
			raw   *string
			field string
			dst   **time.Time
		}{
			{req.EffectiveFrom, "effective_from", &patch.EffectiveFrom},
			{req.EffectiveTo, "effective_to", &patch.EffectiveTo},
		} {
			if d.raw == nil {
				continue
			}
			if *d.dst, err = parseOptionalDate(*d.raw, d.field); err != nil {
				handleError(w, r, err)
				return
			}
		}

		e, err := svc.Update(r.Context(), id, patch)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toScheduleResponse(*e))
	}
}

func deleteScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if _, err := ownedSchedule(svc, r, id); err != nil {
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
