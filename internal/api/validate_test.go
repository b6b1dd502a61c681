package api

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRequest(t *testing.T) {
	day := 1
	cases := []struct {
		name    string
		req     any
		wantErr string
	}{
		{
			name: "valid schedule",
			req:  &CreateScheduleRequest{ScheduleInput: ScheduleInput{DayOfWeek: &day, StartTime: "09:00", EndTime: "10:00"}},
		},
		{
			name:    "missing end time",
			req:     &CreateScheduleRequest{ScheduleInput: ScheduleInput{DayOfWeek: &day, StartTime: "09:00"}},
			wantErr: "end_time is required",
		},
		{
			name:    "bad effective date",
			req:     &CreateScheduleRequest{ScheduleInput: ScheduleInput{StartTime: "09:00", EndTime: "10:00", EffectiveFrom: "01/02/2026"}},
			wantErr: "effective_from must be YYYY-MM-DD",
		},
		{
			name:    "bulk entry checked",
			req:     &BulkScheduleRequest{Schedules: []ScheduleInput{{StartTime: "09:00"}}},
			wantErr: "end_time is required",
		},
		{
			name:    "booking without patient contact",
			req:     &CreateAppointmentRequest{ClinicID: "6f1c1f3e-4c57-4d0a-9a8e-2f0b6c3a9d11", Date: "2026-11-02"},
			wantErr: "patient_phone or chat_id is required",
		},
		{
			name:    "booking clinic must be uuid",
			req:     &CreateAppointmentRequest{ClinicID: "clinic-1", Date: "2026-11-02", ChatID: "42"},
			wantErr: "clinic_id must be a valid UUID",
		},
		{
			name:    "empty message",
			req:     &SendMessageRequest{},
			wantErr: "content is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateRequest(tc.req)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !errors.Is(err, errInvalidParam) {
				t.Errorf("error should wrap errInvalidParam: %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.wantErr)
			}
		})
	}
}
