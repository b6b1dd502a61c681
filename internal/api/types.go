package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/clinic"
	"github.com/hackgods/clinic-appointment-booking/internal/messaging"
	"github.com/hackgods/clinic-appointment-booking/internal/schedule"
	"github.com/hackgods/clinic-appointment-booking/internal/timeofday"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type SlotsResponse struct {
	Slots        []string `json:"slots"`
	SlotDuration int      `json:"slot_duration"`
}

// Schedules

type ScheduleInput struct {
	ScheduleID    *string `json:"schedule_id,omitempty"`
	DayOfWeek     *int    `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	StartTime     string  `json:"start_time" validate:"required"`
	EndTime       string  `json:"end_time" validate:"required"`
	SlotDuration  int     `json:"slot_duration,omitempty" validate:"gte=0"`
	EffectiveFrom string  `json:"effective_from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EffectiveTo   string  `json:"effective_to,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type CreateScheduleRequest struct {
	DoctorID string `json:"doctor_id,omitempty"`
	ClinicID string `json:"clinic_id,omitempty"`
	AdminID  string `json:"admin_id,omitempty"`
	ScheduleInput
}

type UpdateScheduleRequest struct {
	ClinicID      *string `json:"clinic_id,omitempty"`
	DayOfWeek     *int    `json:"day_of_week,omitempty"`
	StartTime     *string `json:"start_time,omitempty"`
	EndTime       *string `json:"end_time,omitempty"`
	SlotDuration  *int    `json:"slot_duration,omitempty"`
	EffectiveFrom *string `json:"effective_from,omitempty"`
	EffectiveTo   *string `json:"effective_to,omitempty"`
}

type BulkScheduleRequest struct {
	DoctorID  string          `json:"doctor_id,omitempty"`
	ClinicID  string          `json:"clinic_id,omitempty"`
	AdminID   string          `json:"admin_id,omitempty"`
	Schedules []ScheduleInput `json:"schedules" validate:"dive"`
}

type ScheduleResponse struct {
	ID            uuid.UUID  `json:"id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	ClinicID      *uuid.UUID `json:"clinic_id,omitempty"`
	AdminID       *uuid.UUID `json:"admin_id,omitempty"`
	DayOfWeek     int        `json:"day_of_week"`
	DayName       string     `json:"day_name"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	SlotDuration  int        `json:"slot_duration"`
	EffectiveFrom string     `json:"effective_from"`
	EffectiveTo   string     `json:"effective_to"`
}

func toScheduleResponse(e schedule.Entry) ScheduleResponse {
	return ScheduleResponse{
		ID:            e.ID,
		DoctorID:      e.DoctorID,
		ClinicID:      e.ClinicID,
		AdminID:       e.AdminID,
		DayOfWeek:     e.DayOfWeek,
		DayName:       timeofday.DayName(e.DayOfWeek),
		StartTime:     timeofday.Format(e.StartMinute),
		EndTime:       timeofday.Format(e.EndMinute),
		SlotDuration:  e.SlotDuration,
		EffectiveFrom: timeofday.FormatDate(e.EffectiveFrom),
		EffectiveTo:   timeofday.FormatDate(e.EffectiveTo),
	}
}

func toScheduleResponses(entries []schedule.Entry) []ScheduleResponse {
	out := make([]ScheduleResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toScheduleResponse(e))
	}
	return out
}

// Clinics

type CreateClinicRequest struct {
	AdminID  string          `json:"admin_id,omitempty"`
	DoctorID string          `json:"doctor_id,omitempty"`
	Name     string          `json:"clinic_name" validate:"required,max=200"`
	Phone    *string         `json:"phone,omitempty"`
	Location *string         `json:"location,omitempty"`
	Status   string          `json:"status,omitempty"`
	Schedule []ScheduleInput `json:"schedule,omitempty" validate:"dive"`
}

type UpdateClinicRequest struct {
	Name     *string `json:"clinic_name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Location *string `json:"location,omitempty"`
	Status   *string `json:"status,omitempty"`
}

type ClinicResponse struct {
	ID        uuid.UUID  `json:"id"`
	AdminID   uuid.UUID  `json:"admin_id"`
	DoctorID  *uuid.UUID `json:"doctor_id,omitempty"`
	Name      string     `json:"clinic_name"`
	Phone     *string    `json:"phone,omitempty"`
	Location  *string    `json:"location,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

func toClinicResponse(c clinic.Clinic) ClinicResponse {
	return ClinicResponse{
		ID:        c.ID,
		AdminID:   c.AdminID,
		DoctorID:  c.DoctorID,
		Name:      c.Name,
		Phone:     c.Phone,
		Location:  c.Location,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
	}
}

// Appointments

// CreateAppointmentRequest selects its target by the fields present:
// slot_id, then start_time with end_time, then time.
type CreateAppointmentRequest struct {
	AdminID      string  `json:"admin_id,omitempty"`
	DoctorID     string  `json:"doctor_id"`
	ClinicID     string  `json:"clinic_id" validate:"required,uuid"`
	PatientPhone string  `json:"patient_phone,omitempty" validate:"required_without=ChatID"`
	PatientName  string  `json:"patient_name,omitempty"`
	ChatID       string  `json:"chat_id,omitempty"`
	SlotID       string  `json:"slot_id,omitempty"`
	Date         string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime    string  `json:"start_time,omitempty"`
	EndTime      string  `json:"end_time,omitempty"`
	Time         string  `json:"time,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

type UpdateAppointmentRequest struct {
	Status string `json:"status" validate:"required"`
}

type AppointmentResponse struct {
	ID        uuid.UUID  `json:"id"`
	PatientID uuid.UUID  `json:"patient_id"`
	DoctorID  uuid.UUID  `json:"doctor_id"`
	ClinicID  uuid.UUID  `json:"clinic_id"`
	AdminID   uuid.UUID  `json:"admin_id"`
	SlotID    *uuid.UUID `json:"slot_id,omitempty"`
	Status    string     `json:"status"`
	Date      string     `json:"appointment_date"`
	StartTime string     `json:"start_time"`
	EndTime   string     `json:"end_time"`
	Notes     *string    `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		ClinicID:  a.ClinicID,
		AdminID:   a.AdminID,
		SlotID:    a.SlotID,
		Status:    string(a.Status),
		Date:      timeofday.FormatDate(a.Date),
		StartTime: timeofday.Format(a.StartMinute),
		EndTime:   timeofday.Format(a.EndMinute),
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
	}
}

// Chat and announcements

type SendMessageRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Sender    string `json:"sender,omitempty"`
	Content   string `json:"content" validate:"required,max=4000"`
}

type MessageResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func toMessageResponse(m messaging.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		PatientID: m.PatientID,
		DoctorID:  m.DoctorID,
		Sender:    string(m.Sender),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

type InboxResponse struct {
	Count    int              `json:"count"`
	LatestAt *time.Time       `json:"latest_at"`
	Latest   *MessageResponse `json:"latest_message"`
}

type AnnouncementRequest struct {
	Action     string `json:"action,omitempty"`
	CampaignID string `json:"campaign_id,omitempty"`
	Message    string `json:"message" validate:"max=2000"`
	TargetMode string `json:"target_mode,omitempty"`
	TargetDate string `json:"target_date,omitempty"`
}

type AnnouncementResponse struct {
	Sent       int        `json:"sent"`
	CampaignID *uuid.UUID `json:"campaign_id"`
	TargetMode string     `json:"target_mode"`
	TargetDate *string    `json:"target_date"`
	ResentFrom *uuid.UUID `json:"resent_from_campaign_id,omitempty"`
}

type CampaignResponse struct {
	ID             uuid.UUID `json:"campaign_id"`
	Message        string    `json:"message"`
	TargetMode     string    `json:"target_mode"`
	RecipientCount int       `json:"recipient_count"`
	CreatedAt      time.Time `json:"created_at"`
}

type ReceivedResponse struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	ReceivedAt time.Time `json:"received_at"`
}
