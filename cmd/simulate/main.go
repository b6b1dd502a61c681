package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
	"github.com/hackgods/clinic-appointment-booking/internal/timeofday"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	ReadRatio    float64
	SlotDuration int
	DaysAhead    int
}

// Target is the clinic the simulation books into, created at startup.
type Target struct {
	AdminID  uuid.UUID
	DoctorID uuid.UUID
	ClinicID uuid.UUID
	Date     string
	Offered  []string

	adminToken  string
	doctorToken string
}

type Booked struct {
	mu  sync.RWMutex
	ids []uuid.UUID
	// byTime counts successful bookings per start time; more than one is a
	// double booking.
	byTime map[string]int
}

func (b *Booked) Add(id uuid.UUID, at string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = append(b.ids, id)
	b.byTime[at]++
}

func (b *Booked) Random(rng *rand.Rand) (uuid.UUID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.ids) == 0 {
		return uuid.Nil, false
	}
	return b.ids[rng.Intn(len(b.ids))], true
}

func (b *Booked) DoubleBooked() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []string
	for at, n := range b.byTime {
		if n > 1 {
			out = append(out, fmt.Sprintf("%s x%d", at, n))
		}
	}
	sort.Strings(out)
	return out
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentiles() (p50, p95, slowest time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	at := func(pct int) time.Duration {
		i := len(latencies) * pct / 100
		if i >= len(latencies) {
			i = len(latencies) - 1
		}
		return latencies[i]
	}
	return at(50), at(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking OperationMetrics
	Confirm OperationMetrics
	Slots   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	target  *Target
	booked  *Booked
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(baseCfg.LogLevel, baseCfg.LogFormat).With().Str("service", "simulate").Logger()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid simulation config")
	}
	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("confirm", cfg.ConfirmRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		booked: &Booked{byTime: make(map[string]int)},
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	sim.target, err = sim.setup(ctx, auth.NewIssuer(baseCfg.JWTSecret, time.Hour))
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("setup failed")
	}
	logger.Info().
		Str("clinic_id", sim.target.ClinicID.String()).
		Str("date", sim.target.Date).
		Int("offered", len(sim.target.Offered)).
		Msg("target clinic ready")

	sim.Run()
	sim.PrintReport()

	if doubles := sim.booked.DoubleBooked(); len(doubles) > 0 {
		logger.Error().Strs("times", doubles).Msg("double booking detected")
		os.Exit(2)
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		SlotDuration: getInt("SIM_SLOT_DURATION", 15),
		DaysAhead:    getInt("SIM_DAYS_AHEAD", 1),
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be > 0")
	}
	return nil
}

// setup creates a clinic that is open all day on every day of the week and loads
// the slots it offers on the target date.
func (s *Simulator) setup(ctx context.Context, iss *auth.Issuer) (*Target, error) {
	t := &Target{AdminID: uuid.New(), DoctorID: uuid.New()}
	t.Date = timeofday.FormatDate(timeofday.DateOf(time.Now()).AddDate(0, 0, s.config.DaysAhead))

	var err error
	if t.adminToken, err = iss.Issue(auth.Identity{UserID: "sim-admin", Role: auth.RoleAdmin, AdminID: &t.AdminID}); err != nil {
		return nil, err
	}
	if t.doctorToken, err = iss.Issue(auth.Identity{UserID: "sim-doctor", Role: auth.RoleDoctor, DoctorID: &t.DoctorID, AdminID: &t.AdminID}); err != nil {
		return nil, err
	}

	schedule := make([]map[string]any, 0, 7)
	for day := 0; day < 7; day++ {
		schedule = append(schedule, map[string]any{
			"day_of_week":   day,
			"start_time":    "08:00",
			"end_time":      "20:00",
			"slot_duration": s.config.SlotDuration,
		})
	}
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, err := s.call(ctx, http.MethodPost, "/clinics", t.adminToken, map[string]any{
		"doctor_id":   t.DoctorID,
		"clinic_name": "Simulation " + gofakeit.City(),
		"schedule":    schedule,
	}, &created)
	if err != nil || status != http.StatusCreated {
		return nil, fmt.Errorf("create clinic: status %d: %v", status, err)
	}
	t.ClinicID = created.ID

	var slots struct {
		Slots []string `json:"slots"`
	}
	status, err = s.call(ctx, http.MethodGet, s.slotsPath(t), t.doctorToken, nil, &slots)
	if err != nil || status != http.StatusOK {
		return nil, fmt.Errorf("load slots: status %d: %v", status, err)
	}
	if len(slots.Slots) == 0 {
		return nil, fmt.Errorf("clinic offers no slots on %s", t.Date)
	}
	t.Offered = slots.Slots
	return t, nil
}

func (s *Simulator) slotsPath(t *Target) string {
	return fmt.Sprintf("/slots?clinic_id=%s&date=%s", t.ClinicID, t.Date)
}

// call sends a JSON request and decodes a JSON response into out when the
// status is 2xx.
func (s *Simulator) call(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	faker := gofakeit.New(uint64(rng.Int63()))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng, faker)
		case r < s.config.BookingRatio+s.config.ConfirmRatio:
			s.doConfirm(ctx, rng)
		default:
			s.doReadSlots(ctx)
		}
	}
}

// doBooking races other workers for a randomly chosen offered time.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	at := s.target.Offered[rng.Intn(len(s.target.Offered))]

	start := time.Now()
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, err := s.call(ctx, http.MethodPost, "/appointments", s.target.adminToken, map[string]any{
		"doctor_id":     s.target.DoctorID,
		"clinic_id":     s.target.ClinicID,
		"patient_phone": faker.Phone(),
		"patient_name":  faker.Name(),
		"date":          s.target.Date,
		"time":          at,
	}, &created)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Booking.Record(time.Since(start), status, err)

	if err == nil && status == http.StatusCreated {
		s.booked.Add(created.ID, at)
	}
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	id, ok := s.booked.Random(rng)
	if !ok {
		return
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodPatch, "/appointments/"+id.String(), s.target.doctorToken,
		map[string]string{"status": "CONFIRMED"}, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Confirm.Record(time.Since(start), status, err)
}

func (s *Simulator) doReadSlots(ctx context.Context) {
	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, s.slotsPath(s.target), s.target.doctorToken, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Slots.Record(time.Since(start), status, err)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s  Workers: %d  Offered slots: %d\n\n", s.config.Duration, s.config.Workers, len(s.target.Offered))

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Slot listing", &s.metrics.Slots)

	booked := atomic.LoadInt64(&s.metrics.Booking.Success)
	fmt.Printf("Booked %d of %d offered slots; double bookings: %d\n",
		booked, len(s.target.Offered), len(s.booked.DoubleBooked()))
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	p50, p95, slowest := om.Percentiles()

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d  Success: %d (%.1f%%)  Conflicts: %d (%.1f%%)  Errors: %d (%.1f%%)\n",
		total, success, pct(success), conflict, pct(conflict), failed, pct(failed))
	fmt.Printf("  Latency: p50=%s p95=%s max=%s\n\n",
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), slowest.Round(time.Millisecond))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
