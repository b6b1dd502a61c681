package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/clinic"
	"github.com/hackgods/clinic-appointment-booking/internal/messaging"
	"github.com/hackgods/clinic-appointment-booking/internal/notify"
	"github.com/hackgods/clinic-appointment-booking/internal/schedule"
	"github.com/hackgods/clinic-appointment-booking/internal/slots"
)

type RouterConfig struct {
	Schedules    *schedule.Service
	Clinics      *clinic.Service
	Appointments *appointment.Service
	Slots        *slots.Generator
	Messaging    *messaging.Service
	Issuer       *auth.Issuer
	Hub          *notify.Hub
	Emitter      notify.Emitter // chat frames from /ws; defaults to Hub
	Origins      []string       // allowed websocket origins
	Health       *HealthHandler
	Logger       zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	// The websocket handler authenticates the upgrade request itself.
	if cfg.Hub != nil {
		r.Handle("/ws", notify.NewWebSocketHandler(cfg.Hub, subjectResolver(cfg.Issuer), cfg.Logger,
			notify.WithEmitter(cfg.Emitter),
			notify.WithAllowedOrigins(cfg.Origins),
		))
	}

	staff := auth.RequireRole(auth.RoleSuperAdmin, auth.RoleAdmin)
	staffOrDoctor := auth.RequireRole(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleDoctor)
	doctorOrPatient := auth.RequireRole(auth.RoleDoctor, auth.RolePatient)

	r.Group(func(r chi.Router) {
		r.Use(cfg.Issuer.Middleware)

		r.Get("/slots", generateSlotsHandler(cfg.Slots))

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", listSchedulesHandler(cfg.Schedules))
			r.With(staffOrDoctor).Post("/", createScheduleHandler(cfg.Schedules))
			r.With(staffOrDoctor).Patch("/", bulkSchedulesHandler(cfg.Schedules))
			r.With(staffOrDoctor).Put("/{id}", updateScheduleHandler(cfg.Schedules))
			r.With(staffOrDoctor).Delete("/{id}", deleteScheduleHandler(cfg.Schedules))
		})

		r.Route("/clinics", func(r chi.Router) {
			r.Use(staffOrDoctor)
			r.Get("/", listClinicsHandler(cfg.Clinics))
			r.Post("/", createClinicHandler(cfg.Clinics))
			r.Get("/{id}", getClinicHandler(cfg.Clinics))
			r.Put("/{id}", updateClinicHandler(cfg.Clinics))
			r.Delete("/{id}", deleteClinicHandler(cfg.Clinics))
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", listAppointmentsHandler(cfg.Appointments))
			r.Post("/", createAppointmentHandler(cfg.Appointments))
			r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
			r.With(staffOrDoctor).Patch("/{id}", updateAppointmentHandler(cfg.Appointments))
			r.With(staff).Delete("/{id}", deleteAppointmentHandler(cfg.Appointments))
		})

		r.Route("/chat", func(r chi.Router) {
			r.Get("/", listMessagesHandler(cfg.Messaging))
			r.Post("/", sendMessageHandler(cfg.Messaging))
			r.With(doctorOrPatient).Get("/notifications", inboxHandler(cfg.Messaging))
		})

		r.Route("/announcements", func(r chi.Router) {
			r.With(doctorOrPatient).Get("/", getAnnouncementsHandler(cfg.Messaging))
			r.With(auth.RequireRole(auth.RoleDoctor)).Post("/", postAnnouncementHandler(cfg.Messaging))
		})
	})

	return r
}

// subjectResolver adapts token identities to websocket room permissions.
func subjectResolver(iss *auth.Issuer) notify.SubjectResolver {
	return func(r *http.Request) (notify.Subject, bool) {
		id, err := iss.Resolve(r)
		if err != nil {
			return notify.Subject{}, false
		}
		s := notify.Subject{UserID: id.UserID, Staff: id.IsStaff()}
		if id.PatientID != nil {
			s.PatientID = id.PatientID.String()
		}
		if id.DoctorID != nil {
			s.DoctorID = id.DoctorID.String()
		}
		return s, true
	}
}
