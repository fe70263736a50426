// Package engine implements the reservation conflict-detection and mutation
// rules: interval overlap checks, overnight splitting, password-gated
// edits/deletes and registry rename propagation. It is stateless between
// calls; every operation is a read-then-write round trip against the table
// store, serialized by a single mutex.
package engine

import (
	"context"
	"crypto/subtle"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"labreserve/internal/events"
	"labreserve/internal/metrics"
	"labreserve/internal/models"
	"labreserve/internal/repository"
	"labreserve/internal/timespec"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
	idLayout        = "20060102150405"
)

type Engine struct {
	repo          *repository.Repository
	bus           *events.Bus
	adminPassword string
	logger        zerolog.Logger

	// One writer at a time. This closes the check-then-write race for
	// in-process callers; concurrent writers in other processes remain a
	// documented limitation of the store.
	mu sync.Mutex

	now func() time.Time
}

// New creates an engine over the given repository. bus may be nil.
func New(repo *repository.Repository, bus *events.Bus, adminPassword string, logger *zerolog.Logger) *Engine {
	return &Engine{
		repo:          repo,
		bus:           bus,
		adminPassword: adminPassword,
		logger:        logger.With().Str("component", "engine").Logger(),
		now:           time.Now,
	}
}

// WithClock overrides the engine clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateRequest carries raw user input for a new reservation. Times are raw
// 4-digit strings ("0900"); everything else is already in canonical form.
type CreateRequest struct {
	UserName  string
	Lab       string
	Equipment string
	Date      string // YYYY-MM-DD
	RawStart  string // HHMM
	RawEnd    string // HHMM
	Password  string // 4 digits
}

// Create validates the request, checks for conflicts and appends one row, or
// two rows when the interval crosses midnight. On any failure nothing is
// written, including the audit log.
func (e *Engine) Create(ctx context.Context, req CreateRequest) ([]models.Reservation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.UserName == "" {
		metrics.IncReservationRejected("validation")
		return nil, validationf("requester name is required")
	}
	if !validPassword(req.Password) {
		metrics.IncReservationRejected("validation")
		return nil, validationf("password must be exactly 4 digits")
	}

	start, err := timespec.Parse(req.RawStart)
	if err != nil {
		metrics.IncReservationRejected("validation")
		return nil, &ValidationError{Reason: err.Error()}
	}
	end, err := timespec.Parse(req.RawEnd)
	if err != nil {
		metrics.IncReservationRejected("validation")
		return nil, &ValidationError{Reason: err.Error()}
	}
	if start == end {
		metrics.IncReservationRejected("validation")
		return nil, validationf("start and end time must differ")
	}

	day, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		metrics.IncReservationRejected("validation")
		return nil, validationf("date %q: expected YYYY-MM-DD", req.Date)
	}

	if err := e.checkRegistered(ctx, req.Lab, req.Equipment); err != nil {
		metrics.IncReservationRejected("validation")
		return nil, err
	}

	reservations, err := e.repo.Reservations(ctx)
	if err != nil {
		return nil, storeErr("read reservations", err)
	}

	base := models.Reservation{
		UserName:  req.UserName,
		Lab:       req.Lab,
		Equipment: req.Equipment,
		Password:  req.Password,
	}
	id := e.now().Format(idLayout)

	var created []models.Reservation
	overnight := end < start
	if overnight {
		// Midnight-crossing request becomes two same-day halves. Both days are
		// checked before anything is written so a rejected half never leaves
		// its twin behind.
		nextDay := day.AddDate(0, 0, 1).Format(dateLayout)
		if blocker := findConflict(reservations, req.Date, req.Equipment, start, timespec.EndOfDay, ""); blocker != nil {
			metrics.IncReservationRejected("conflict")
			return nil, &ConflictError{Equipment: req.Equipment, Date: req.Date, BlockedBy: blocker.UserName}
		}
		if blocker := findConflict(reservations, nextDay, req.Equipment, "00:00", end, ""); blocker != nil {
			metrics.IncReservationRejected("conflict")
			return nil, &ConflictError{Equipment: req.Equipment, Date: nextDay, BlockedBy: blocker.UserName}
		}

		first := base
		first.ID = id + "_1"
		first.Date = req.Date
		first.StartTime = start
		first.EndTime = timespec.EndOfDay

		second := base
		second.ID = id + "_2"
		second.Date = nextDay
		second.StartTime = "00:00"
		second.EndTime = end

		created = []models.Reservation{first, second}
	} else {
		if blocker := findConflict(reservations, req.Date, req.Equipment, start, end, ""); blocker != nil {
			metrics.IncReservationRejected("conflict")
			return nil, &ConflictError{Equipment: req.Equipment, Date: req.Date, BlockedBy: blocker.UserName}
		}

		one := base
		one.ID = id
		one.Date = req.Date
		one.StartTime = start
		one.EndTime = end
		created = []models.Reservation{one}
	}

	// Both halves of an overnight pair go down in a single append.
	if err := e.repo.AppendReservations(ctx, created...); err != nil {
		return nil, storeErr("append reservations", err)
	}

	if overnight {
		metrics.IncReservationCreated("overnight")
		e.audit(ctx, "reserve_overnight", req.UserName, req.Equipment+" / "+req.Date+" "+start+"~"+end)
	} else {
		metrics.IncReservationCreated("single")
		e.audit(ctx, "reserve", req.UserName, req.Equipment+" / "+req.Date+" "+start+"~"+end)
	}

	e.publish(events.TypeReservationCreated, events.ReservationEvent{
		ID:        id,
		UserName:  req.UserName,
		Lab:       req.Lab,
		Equipment: req.Equipment,
		Date:      req.Date,
		StartTime: start,
		EndTime:   end,
		Overnight: overnight,
	})

	e.logger.Info().
		Str("id", id).
		Str("equipment", req.Equipment).
		Str("date", req.Date).
		Bool("overnight", overnight).
		Msg("reservation created")

	return created, nil
}

// EditRequest carries a partial update for an existing reservation. Empty
// fields keep their stored value; times are raw 4-digit input.
type EditRequest struct {
	ID           string
	RawStart     string
	RawEnd       string
	NewDate      string
	NewEquipment string
	Password     string
}

// Edit updates a reservation in place. The stored password gates the change;
// the edited row is excluded from its own conflict check.
func (e *Engine) Edit(ctx context.Context, req EditRequest) (*models.Reservation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	reservations, err := e.repo.Reservations(ctx)
	if err != nil {
		return nil, storeErr("read reservations", err)
	}

	idx := findByID(reservations, req.ID)
	if idx < 0 {
		metrics.IncReservationRejected("validation")
		return nil, validationf("no reservation with id %q", req.ID)
	}

	target := reservations[idx]
	if !equalPassword(req.Password, target.Password) {
		metrics.IncReservationRejected("unauthorized")
		return nil, &UnauthorizedError{Reason: "password mismatch"}
	}

	updated := target
	if req.RawStart != "" {
		start, err := timespec.Parse(req.RawStart)
		if err != nil {
			metrics.IncReservationRejected("validation")
			return nil, &ValidationError{Reason: err.Error()}
		}
		updated.StartTime = start
	}
	if req.RawEnd != "" {
		end, err := timespec.Parse(req.RawEnd)
		if err != nil {
			metrics.IncReservationRejected("validation")
			return nil, &ValidationError{Reason: err.Error()}
		}
		updated.EndTime = end
	}
	if req.NewDate != "" {
		if _, err := time.Parse(dateLayout, req.NewDate); err != nil {
			metrics.IncReservationRejected("validation")
			return nil, validationf("date %q: expected YYYY-MM-DD", req.NewDate)
		}
		updated.Date = req.NewDate
	}
	if req.NewEquipment != "" {
		registered, err := e.repo.Equipment(ctx)
		if err != nil {
			return nil, storeErr("read equipment registry", err)
		}
		if !contains(registered, req.NewEquipment) {
			metrics.IncReservationRejected("validation")
			return nil, validationf("unknown equipment %q", req.NewEquipment)
		}
		updated.Equipment = req.NewEquipment
	}

	if updated.StartTime == updated.EndTime {
		metrics.IncReservationRejected("validation")
		return nil, validationf("start and end time must differ")
	}
	if updated.EndTime < updated.StartTime {
		// An edit cannot turn a record into an overnight pair; delete and
		// rebook instead.
		metrics.IncReservationRejected("validation")
		return nil, validationf("end time must be after start time")
	}

	if blocker := findConflict(reservations, updated.Date, updated.Equipment, updated.StartTime, updated.EndTime, updated.ID); blocker != nil {
		metrics.IncReservationRejected("conflict")
		return nil, &ConflictError{Equipment: updated.Equipment, Date: updated.Date, BlockedBy: blocker.UserName}
	}

	reservations[idx] = updated
	if err := e.repo.SaveReservations(ctx, reservations); err != nil {
		return nil, storeErr("write reservations", err)
	}

	e.audit(ctx, "edit", updated.UserName, updated.Equipment+" / "+updated.Date+" "+updated.TimeRange())
	e.publish(events.TypeReservationUpdated, events.ReservationEvent{
		ID:        updated.ID,
		UserName:  updated.UserName,
		Lab:       updated.Lab,
		Equipment: updated.Equipment,
		Date:      updated.Date,
		StartTime: updated.StartTime,
		EndTime:   updated.EndTime,
	})

	e.logger.Info().Str("id", updated.ID).Msg("reservation edited")
	return &updated, nil
}

// Delete removes a reservation. The stored password gates the delete unless
// adminOverride is set.
func (e *Engine) Delete(ctx context.Context, id, password string, adminOverride bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	reservations, err := e.repo.Reservations(ctx)
	if err != nil {
		return storeErr("read reservations", err)
	}

	idx := findByID(reservations, id)
	if idx < 0 {
		metrics.IncReservationRejected("validation")
		return validationf("no reservation with id %q", id)
	}

	target := reservations[idx]
	if !adminOverride && !equalPassword(password, target.Password) {
		metrics.IncReservationRejected("unauthorized")
		return &UnauthorizedError{Reason: "password mismatch"}
	}

	remaining := append(reservations[:idx:idx], reservations[idx+1:]...)
	if err := e.repo.SaveReservations(ctx, remaining); err != nil {
		return storeErr("write reservations", err)
	}

	metrics.IncReservationDeleted()
	e.audit(ctx, "delete", target.UserName, target.Equipment+" / "+target.Date+" "+target.TimeRange())
	e.publish(events.TypeReservationDeleted, events.ReservationEvent{
		ID:        target.ID,
		UserName:  target.UserName,
		Lab:       target.Lab,
		Equipment: target.Equipment,
		Date:      target.Date,
		StartTime: target.StartTime,
		EndTime:   target.EndTime,
	})

	e.logger.Info().Str("id", id).Bool("admin", adminOverride).Msg("reservation deleted")
	return nil
}

// RecordWater appends one purified-water ledger row dated today.
func (e *Engine) RecordWater(ctx context.Context, userName, lab, amount string) (*models.WaterUsage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if userName == "" {
		return nil, validationf("requester name is required")
	}
	if !validAmount(amount) {
		return nil, validationf("amount %q: expected a positive decimal", amount)
	}

	labs, err := e.repo.Labs(ctx)
	if err != nil {
		return nil, storeErr("read lab registry", err)
	}
	if !contains(labs, lab) {
		return nil, validationf("unknown lab %q", lab)
	}

	usage := models.WaterUsage{
		Date:     e.now().Format(dateLayout),
		UserName: userName,
		Lab:      lab,
		Amount:   amount,
	}
	if err := e.repo.AppendWaterUsage(ctx, usage); err != nil {
		return nil, storeErr("append water usage", err)
	}

	e.audit(ctx, "water", userName, amount+"L")
	e.publish(events.TypeWaterRecorded, events.WaterEvent{UserName: userName, Lab: lab, Amount: amount})
	return &usage, nil
}

// VerifyAdmin reports whether the supplied password matches the configured
// admin password.
func (e *Engine) VerifyAdmin(password string) bool {
	return equalPassword(password, e.adminPassword)
}

// Labs returns the lab registry.
func (e *Engine) Labs(ctx context.Context) ([]string, error) {
	labs, err := e.repo.Labs(ctx)
	if err != nil {
		return nil, storeErr("read lab registry", err)
	}
	return labs, nil
}

// Equipment returns the equipment registry.
func (e *Engine) Equipment(ctx context.Context) ([]string, error) {
	eq, err := e.repo.Equipment(ctx)
	if err != nil {
		return nil, storeErr("read equipment registry", err)
	}
	return eq, nil
}

// Reservations returns every reservation in table order.
func (e *Engine) Reservations(ctx context.Context) ([]models.Reservation, error) {
	reservations, err := e.repo.Reservations(ctx)
	if err != nil {
		return nil, storeErr("read reservations", err)
	}
	return reservations, nil
}

// ReservationsOn returns the reservations for one equipment and date.
func (e *Engine) ReservationsOn(ctx context.Context, date, equipment string) ([]models.Reservation, error) {
	reservations, err := e.repo.Reservations(ctx)
	if err != nil {
		return nil, storeErr("read reservations", err)
	}
	var out []models.Reservation
	for _, r := range reservations {
		if r.Date == date && r.Equipment == equipment {
			out = append(out, r)
		}
	}
	return out, nil
}

// Upcoming returns reservations for the equipment that have not yet ended,
// ordered by date then start time.
func (e *Engine) Upcoming(ctx context.Context, equipment string) ([]models.Reservation, error) {
	reservations, err := e.repo.Reservations(ctx)
	if err != nil {
		return nil, storeErr("read reservations", err)
	}

	now := e.now()
	var out []models.Reservation
	for _, r := range reservations {
		if r.Equipment != equipment || r.EndsBefore(now) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

// WaterUsage returns the purified-water ledger in table order.
func (e *Engine) WaterUsage(ctx context.Context) ([]models.WaterUsage, error) {
	usage, err := e.repo.WaterUsage(ctx)
	if err != nil {
		return nil, storeErr("read water usage", err)
	}
	return usage, nil
}

// AuditLog returns audit entries newest first.
func (e *Engine) AuditLog(ctx context.Context) ([]models.LogEntry, error) {
	entries, err := e.repo.AuditLog(ctx)
	if err != nil {
		return nil, storeErr("read audit log", err)
	}
	out := make([]models.LogEntry, len(entries))
	for i, entry := range entries {
		out[len(entries)-1-i] = entry
	}
	return out, nil
}

func (e *Engine) checkRegistered(ctx context.Context, lab, equipment string) error {
	labs, err := e.repo.Labs(ctx)
	if err != nil {
		return storeErr("read lab registry", err)
	}
	if !contains(labs, lab) {
		return validationf("unknown lab %q", lab)
	}
	registered, err := e.repo.Equipment(ctx)
	if err != nil {
		return storeErr("read equipment registry", err)
	}
	if !contains(registered, equipment) {
		return validationf("unknown equipment %q", equipment)
	}
	return nil
}

// audit appends one log row. Audit failures must never abort the primary
// operation, so errors stop here.
func (e *Engine) audit(ctx context.Context, action, user, details string) {
	entry := models.LogEntry{
		Timestamp: e.now().Format(timestampLayout),
		Action:    action,
		User:      user,
		Details:   details,
	}
	if err := e.repo.AppendLog(ctx, entry); err != nil {
		e.logger.Warn().Err(err).Str("action", action).Msg("audit append failed")
	}
}

func (e *Engine) publish(eventType string, payload interface{}) {
	if e.bus == nil {
		return
	}
	if err := e.bus.PublishJSON(eventType, payload); err != nil {
		e.logger.Warn().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}

func validPassword(pw string) bool {
	if len(pw) != 4 {
		return false
	}
	for _, r := range pw {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// equalPassword compares the stored token in constant time. The token is a
// capability, not real authentication; see the design notes.
func equalPassword(supplied, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(stored)) == 1
}

func validAmount(s string) bool {
	v, err := strconv.ParseFloat(s, 64)
	return err == nil && v > 0
}

func findByID(reservations []models.Reservation, id string) int {
	for i := range reservations {
		if reservations[i].ID == id {
			return i
		}
	}
	return -1
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
