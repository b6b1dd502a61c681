package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-appointment-booking/internal/app"
	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/clinic"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
	"github.com/hackgods/clinic-appointment-booking/internal/schedule"
	"github.com/hackgods/clinic-appointment-booking/internal/slots"
	"github.com/hackgods/clinic-appointment-booking/internal/timeofday"
)

type seedOptions struct {
	doctors      int
	bookings     int
	days         int
	slotDuration int
}

func main() {
	var opts seedOptions

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Create demo clinics, schedules and appointments and print access tokens",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}
			logger := logging.New(cfg.LogLevel, cfg.LogFormat).With().Str("service", "seed").Logger()
			return run(cmd.Context(), cfg, logger, opts)
		},
	}
	cmd.Flags().IntVar(&opts.doctors, "doctors", 5, "number of doctors, each with one clinic")
	cmd.Flags().IntVar(&opts.bookings, "bookings", 3, "appointments booked per doctor")
	cmd.Flags().IntVar(&opts.days, "days", 14, "days ahead to search for free slots")
	cmd.Flags().IntVar(&opts.slotDuration, "slot-duration", 30, "slot length in minutes")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts seedOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	faker := gofakeit.New(0)
	adminID := uuid.New()

	adminTok, err := a.Issuer.Issue(auth.Identity{UserID: adminID.String(), Role: auth.RoleAdmin, AdminID: &adminID})
	if err != nil {
		return err
	}
	fmt.Printf("admin    %s\n  token: %s\n", adminID, adminTok)

	for i := 0; i < opts.doctors; i++ {
		doctorID := uuid.New()
		c, err := seedClinic(ctx, a.Clinics, faker, adminID, doctorID, opts.slotDuration)
		if err != nil {
			return fmt.Errorf("seed clinic %d: %w", i, err)
		}

		booked, err := seedBookings(ctx, a, faker, c, opts)
		if err != nil {
			return fmt.Errorf("seed bookings for %s: %w", c.Name, err)
		}

		tok, err := a.Issuer.Issue(auth.Identity{
			UserID:   doctorID.String(),
			Role:     auth.RoleDoctor,
			DoctorID: &doctorID,
			AdminID:  &adminID,
		})
		if err != nil {
			return err
		}
		fmt.Printf("doctor   %s clinic %s (%s), %d bookings\n  token: %s\n", doctorID, c.ID, c.Name, len(booked), tok)

		for _, appt := range booked {
			patientID := appt.PatientID
			ptok, err := a.Issuer.Issue(auth.Identity{UserID: patientID.String(), Role: auth.RolePatient, PatientID: &patientID})
			if err != nil {
				return err
			}
			fmt.Printf("  patient %s %s %s\n    token: %s\n",
				patientID, timeofday.FormatDate(appt.Date), timeofday.Format(appt.StartMinute), ptok)
		}
	}

	logger.Info().Int("doctors", opts.doctors).Msg("seed complete")
	return nil
}

// seedClinic creates a clinic with a weekday morning and afternoon schedule.
func seedClinic(ctx context.Context, svc *clinic.Service, faker *gofakeit.Faker, adminID, doctorID uuid.UUID, slotDuration int) (*clinic.Clinic, error) {
	var week []schedule.Input
	for day := 1; day <= 5; day++ {
		week = append(week,
			schedule.Input{DayOfWeek: day, StartTime: "09:00", EndTime: "12:00", SlotDuration: slotDuration},
			schedule.Input{DayOfWeek: day, StartTime: "2:00 PM", EndTime: "5:00 PM", SlotDuration: slotDuration},
		)
	}

	phone := faker.Phone()
	location := faker.City()
	return svc.Create(ctx, clinic.CreateRequest{
		AdminID:  &adminID,
		DoctorID: &doctorID,
		Name:     faker.Company() + " Clinic",
		Phone:    &phone,
		Location: &location,
		Schedule: week,
	})
}

// seedBookings books the first free generated slot of each coming day.
func seedBookings(ctx context.Context, a *app.App, faker *gofakeit.Faker, c *clinic.Clinic, opts seedOptions) ([]appointment.Appointment, error) {
	var out []appointment.Appointment
	today := timeofday.DateOf(time.Now())

	for d := 1; d <= opts.days && len(out) < opts.bookings; d++ {
		date := today.AddDate(0, 0, d)
		res, err := a.Slots.Generate(ctx, slots.Query{ClinicID: c.ID, Date: date, DoctorID: c.DoctorID})
		if err != nil {
			return nil, err
		}
		if len(res.Slots) == 0 {
			continue
		}

		notes := "Referred by " + faker.Name()
		appt, err := a.Appointments.CreateAppointment(ctx, appointment.CreateRequest{
			AdminID:  c.AdminID,
			DoctorID: *c.DoctorID,
			ClinicID: c.ID,
			Patient:  appointment.PatientRef{Phone: faker.Phone(), Name: faker.Name()},
			Target:   appointment.GeneratedTarget{Date: date, Time: res.Slots[0]},
			Notes:    &notes,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, *appt)
	}
	return out, nil
}
