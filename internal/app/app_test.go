package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/notify"
)

func memoryConfig() config.Config {
	return config.Config{
		Store:          config.StoreMemory,
		NotifyBackend:  config.NotifyHub,
		JWTSecret:      "test",
		TokenTTL:       time.Hour,
		LockTTL:        time.Second,
		ClinicLocation: time.UTC,
	}
}

func TestNew_MemoryStore(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Pool != nil || a.Redis != nil {
		t.Fatal("memory store should not connect external backends")
	}
	if a.Schedules == nil || a.Clinics == nil || a.Appointments == nil || a.Messaging == nil || a.Slots == nil {
		t.Fatal("services not wired")
	}
	if _, ok := a.Emitter.(*notify.Hub); !ok {
		t.Fatalf("hub backend should publish through the hub, got %T", a.Emitter)
	}
	if err := a.RunRelay(context.Background()); err != nil {
		t.Fatalf("hub relay should return immediately: %v", err)
	}
}
