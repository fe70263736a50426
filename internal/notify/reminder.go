package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"labreserve/internal/models"
)

// ReservationSource lists reservations for reminder scans. Satisfied by the
// engine.
type ReservationSource interface {
	Reservations(ctx context.Context) ([]models.Reservation, error)
}

// Reminder posts a summary of tomorrow's reservations to the Telegram channel
// once a day.
type Reminder struct {
	source   ReservationSource
	telegram *Telegram
	hour     int
	logger   zerolog.Logger
	now      func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewReminder schedules a daily digest at the given local hour.
func NewReminder(source ReservationSource, telegram *Telegram, hour int, logger *zerolog.Logger) *Reminder {
	if hour < 0 || hour > 23 {
		hour = 9
	}
	return &Reminder{
		source:   source,
		telegram: telegram,
		hour:     hour,
		logger:   logger.With().Str("component", "reminder").Logger(),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the daily schedule.
func (r *Reminder) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop()
	r.logger.Info().Int("hour", r.hour).Msg("reminder service started")
}

// Stop halts the schedule and waits for an in-flight send.
func (r *Reminder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
}

func (r *Reminder) loop() {
	defer r.wg.Done()

	timer := time.NewTimer(untilNextHour(r.now(), r.hour))
	defer timer.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-timer.C:
			r.sendTomorrowDigest()
			timer.Reset(untilNextHour(r.now(), r.hour))
		}
	}
}

func (r *Reminder) sendTomorrowDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	all, err := r.source.Reservations(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to load reservations for reminder")
		return
	}

	tomorrow := r.now().AddDate(0, 0, 1).Format("2006-01-02")
	msg := reminderDigest(tomorrow, all)
	if msg == "" {
		return
	}
	r.telegram.send(msg)
}

// reminderDigest builds the daily message, or "" when nothing is booked for
// the date.
func reminderDigest(date string, all []models.Reservation) string {
	var lines []string
	for _, res := range all {
		if res.Date != date {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s: %s (%s, %s)",
			res.Equipment, res.TimeRange(), res.UserName, res.Lab))
	}
	if len(lines) == 0 {
		return ""
	}
	return fmt.Sprintf("Reservations for %s:\n%s", date, strings.Join(lines, "\n"))
}

// untilNextHour returns the wait until the next occurrence of the given local
// hour.
func untilNextHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
