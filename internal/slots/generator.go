// Package slots turns recurring weekly schedules into the bookable start
// times of one calendar date.
package slots

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/schedule"
	"github.com/hackgods/clinic-appointment-booking/internal/timeofday"
)

var ErrMissingQuery = errors.New("clinic and date are required")

// ScheduleSource lists schedule entries; schedule.Repository satisfies it.
type ScheduleSource interface {
	List(ctx context.Context, f schedule.Filter) ([]schedule.Entry, error)
}

// BookingSource reports the start minutes already taken at a clinic on a
// date by live appointments and booked slots. A non-nil doctorID narrows
// the result to that doctor.
type BookingSource interface {
	BookedTimes(ctx context.Context, clinicID uuid.UUID, doctorID *uuid.UUID, date time.Time) ([]int, error)
}

type Query struct {
	ClinicID uuid.UUID
	Date     time.Time
	DoctorID *uuid.UUID
}

type Result struct {
	Slots        []string
	SlotDuration int
}

// Contains reports whether label is one of the offered slots.
func (r Result) Contains(label string) bool {
	i := sort.SearchStrings(r.Slots, label)
	return i < len(r.Slots) && r.Slots[i] == label
}

type Generator struct {
	schedules ScheduleSource
	bookings  BookingSource
	now       func() time.Time
	loc       *time.Location
}

func NewGenerator(schedules ScheduleSource, bookings BookingSource, now func() time.Time, loc *time.Location) *Generator {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &Generator{
		schedules: schedules,
		bookings:  bookings,
		now:       now,
		loc:       loc,
	}
}

// Generate computes the free slot labels for q. It reads a snapshot and
// never writes; a label it returns may be taken by the time it is booked.
func (g *Generator) Generate(ctx context.Context, q Query) (Result, error) {
	if q.ClinicID == uuid.Nil || q.Date.IsZero() {
		return Result{}, ErrMissingQuery
	}

	date := timeofday.DateOf(q.Date)
	day := timeofday.Weekday(date)

	entries, err := g.schedules.List(ctx, schedule.Filter{
		DoctorID:  q.DoctorID,
		ClinicID:  &q.ClinicID,
		DayOfWeek: &day,
	})
	if err != nil {
		return Result{}, fmt.Errorf("list schedules: %w", err)
	}

	active := entries[:0:0]
	for _, e := range entries {
		if e.ActiveOn(date) {
			active = append(active, e)
		}
	}
	if len(active) == 0 {
		return Result{Slots: []string{}}, nil
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].StartMinute < active[j].StartMinute })

	booked, err := g.bookings.BookedTimes(ctx, q.ClinicID, q.DoctorID, date)
	if err != nil {
		return Result{}, fmt.Errorf("load booked times: %w", err)
	}
	taken := make(map[int]struct{}, len(booked))
	for _, m := range booked {
		taken[m] = struct{}{}
	}

	now := g.now().In(g.loc)
	today := timeofday.DateOf(now)
	nowMinute := timeofday.MinuteOf(now)

	var cutoff int
	switch {
	case date.Before(today):
		return Result{Slots: []string{}, SlotDuration: active[0].SlotDuration}, nil
	case date.Equal(today):
		cutoff = nowMinute
	default:
		cutoff = -1
	}

	seen := make(map[int]struct{})
	for _, e := range active {
		for _, m := range Walk(e.StartMinute, e.EndMinute, e.SlotDuration) {
			if m <= cutoff {
				continue
			}
			if _, ok := taken[m]; ok {
				continue
			}
			seen[m] = struct{}{}
		}
	}

	labels := make([]string, 0, len(seen))
	for m := range seen {
		labels = append(labels, timeofday.Format(m))
	}
	sort.Strings(labels)

	return Result{Slots: labels, SlotDuration: active[0].SlotDuration}, nil
}

// Walk returns start, start+step, ... while below end. The last value may
// begin a slot that runs past end; it is not trimmed.
func Walk(start, end, step int) []int {
	if step <= 0 || start >= end {
		return nil
	}
	out := make([]int, 0, (end-start+step-1)/step)
	for m := start; m < end; m += step {
		out = append(out, m)
	}
	return out
}
