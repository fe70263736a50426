package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labreserve/internal/events"
	"labreserve/internal/repository"
	"labreserve/internal/store"
)

const adminPassword = "admin1234"

func newTestEngine(t *testing.T, ts store.TableStore) *Engine {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, ts.Write(ctx, store.TableLabs, [][]string{{"Lab1"}, {"Lab2"}}))
	require.NoError(t, ts.Write(ctx, store.TableEquipment, [][]string{{"HPLC"}, {"GC-MS"}}))

	logger := zerolog.New(io.Discard)
	eng := New(repository.New(ts), events.NewBus(), adminPassword, &logger)

	// Deterministic, strictly advancing clock so generated ids stay unique.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	eng.WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	return eng
}

// newEngineOver builds a second engine over an already-seeded store, sharing
// the source engine's clock.
func newEngineOver(t *testing.T, src *Engine, ts store.TableStore) *Engine {
	t.Helper()
	logger := zerolog.New(io.Discard)
	return New(repository.New(ts), events.NewBus(), adminPassword, &logger).WithClock(src.now)
}

func createReq(start, end string) CreateRequest {
	return CreateRequest{
		UserName:  "kim",
		Lab:       "Lab1",
		Equipment: "HPLC",
		Date:      "2026-03-10",
		RawStart:  start,
		RawEnd:    end,
		Password:  "1234",
	}
}

func TestCreate_Single(t *testing.T) {
	eng := newTestEngine(t, store.NewMemory())
	ctx := context.Background()

	created, err := eng.Create(ctx, createReq("0900", "1000"))
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "09:00", created[0].StartTime)
	assert.Equal(t, "10:00", created[0].EndTime)
	assert.Equal(t, "2026-03-10", created[0].Date)
	assert.NotEmpty(t, created[0].ID)

	// Success leaves an audit row behind.
	log, err := eng.AuditLog(ctx)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "reserve", log[0].Action)
	assert.Equal(t, "kim", log[0].User)
}

func TestCreate_Validation(t *testing.T) {
	eng := newTestEngine(t, store.NewMemory())
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateRequest
	}{
		{"EmptyName", CreateRequest{Lab: "Lab1", Equipment: "HPLC", Date: "2026-03-10", RawStart: "0900", RawEnd: "1000", Password: "1234"}},
		{"ShortPassword", createWith(func(r *CreateRequest) { r.Password = "123" })},
		{"AlphaPassword", createWith(func(r *CreateRequest) { r.Password = "12ab" })},
		{"BadStart", createWith(func(r *CreateRequest) { r.RawStart = "9am" })},
		{"BadEnd", createWith(func(r *CreateRequest) { r.RawEnd = "2560" })},
		{"EqualTimes", createWith(func(r *CreateRequest) { r.RawEnd = "0900" })},
		{"BadDate", createWith(func(r *CreateRequest) { r.Date = "03/10/2026" })},
		{"UnknownLab", createWith(func(r *CreateRequest) { r.Lab = "Lab9" })},
		{"UnknownEquipment", createWith(func(r *CreateRequest) { r.Equipment = "NMR" })},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.Create(ctx, tc.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}

	// Nothing hit the store, audit log included.
	reservations, err := eng.Reservations(ctx)
	require.NoError(t, err)
	assert.Empty(t, reservations)
	log, err := eng.AuditLog(ctx)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func createWith(mutate func(*CreateRequest)) CreateRequest {
	req := createReq("0900", "1000")
	mutate(&req)
	return req
}

func TestCreate_Conflict(t *testing.T) {
	eng := newTestEngine(t, store.NewMemory())
	ctx := context.Background()

	_, err := eng.Create(ctx, createReq("0900", "1000"))
	require.NoError(t, err)

	t.Run("OverlapRejected", func(t *testing.T) {
		req := createReq("0930", "1100")
		req.UserName = "lee"
		_, err := eng.Create(ctx, req)

		var cerr *ConflictError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "kim", cerr.BlockedBy)
	})

	t.Run("TouchingBoundaryAllowed", func(t *testing.T) {
		req := createReq("1000", "1100")
		req.UserName = "lee"
		_, err := eng.Create(ctx, req)
		assert.NoError(t, err)
	})

	t.Run("OtherEquipmentUnaffected", func(t *testing.T) {
		req := createReq("0900", "1000")
		req.Equipment = "GC-MS"
		_, err := eng.Create(ctx, req)
		assert.NoError(t, err)
	})

	t.Run("OtherDateUnaffected", func(t *testing.T) {
		req := createReq("0900", "1000")
		req.Date = "2026-03-11"
		_, err := eng.Create(ctx, req)
		assert.NoError(t, err)
	})
}

func TestCreate_OvernightSplit(t *testing.T) {
	eng := newTestEngine(t, store.NewMemory())
	ctx := context.Background()

	created, err := eng.Create(ctx, createReq("2300", "0300"))
	require.NoError(t, err)
	require.Len(t, created, 2)

	first, second := created[0], created[1]
	assert.Equal(t, "2026-03-10", first.Date)
	assert.Equal(t, "23:00", first.StartTime)
	assert.Equal(t, "24:00", first.EndTime)
	assert.Equal(t, "2026-03-11", second.Date)
	assert.Equal(t, "00:00", second.StartTime)
	assert.Equal(t, "03:00", second.EndTime)

	// Halves share a base id with _1/_2 suffixes.
	assert.Equal(t, first.ID[:len(first.ID)-2], second.ID[:len(second.ID)-2])
	assert.Contains(t, first.ID, "_1")
	assert.Contains(t, second.ID, "_2")

	log, err := eng.AuditLog(ctx)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "reserve_overnight", log[0].Action)
}

func TestCreate_OvernightMonthBoundary(t *testing.T) {
	eng := newTestEngine(t, store.NewMemory())
	ctx := context.Background()

	req := createReq("2300", "0100")
	req.Date = "2026-03-31"
	created, err := eng.Create(ctx, req)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "2026-04-01", created[1].Date)
}

func TestCreate_OvernightConflictWritesNothing(t *testing.T) {
	ctx := context.Background()

	t.Run("FirstHalfBlocked", func(t *testing.T) {
		eng := newTestEngine(t, store.NewMemory())
		blocker := createReq("2330", "2345")
		blocker.UserName = "park"
		_, err := eng.Create(ctx, blocker)
		require.NoError(t, err)

		_, err = eng.Create(ctx, createReq("2300", "0300"))
		var cerr *ConflictError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "park", cerr.BlockedBy)

		reservations, err := eng.Reservations(ctx)
		require.NoError(t, err)
		assert.Len(t, reservations, 1) // only the blocker
	})

	t.Run("SecondHalfBlocked", func(t *testing.T) {
		eng := newTestEngine(t, store.NewMemory())
		blocker := createReq("0015", "0030")
		blocker.UserName = "park"
		blocker.Date = "2026-03-11"
		_, err := eng.Create(ctx, blocker)
		require.NoError(t, err)

		_, err = eng.Create(ctx, createReq("2300", "0300"))
		var cerr *ConflictError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "park", cerr.BlockedBy)

		reservations, err := eng.Reservations(ctx)
		require.NoError(t, err)
		assert.Len(t, reservations, 1)
	})
}

func TestEdit(t *testing.T) {
	eng := newTestEngine(t, store.NewMemory())
	ctx := context.Background()

	created, err := eng.Create(ctx, createReq("0900", "1000"))
	require.NoError(t, err)
	id := created[0].ID

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := eng.Edit(ctx, EditRequest{ID: id, RawEnd: "0930", Password: "0000"})
		var uerr *UnauthorizedError
		require.ErrorAs(t, err, &uerr)
	})

	t.Run("UnknownID", func(t *testing.T) {
		_, err := eng.Edit(ctx, EditRequest{ID: "nope", RawEnd: "0930", Password: "1234"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("SelfExclusion", func(t *testing.T) {
		// Shrinking inside its own interval must not conflict with itself.
		updated, err := eng.Edit(ctx, EditRequest{ID: id, RawEnd: "0930", Password: "1234"})
		require.NoError(t, err)
		assert.Equal(t, "09:00", updated.StartTime)
		assert.Equal(t, "09:30", updated.EndTime)
		assert.Equal(t, id, updated.ID)
		assert.Equal(t, "1234", updated.Password)
	})

	t.Run("ConflictWithOther", func(t *testing.T) {
		other := createReq("1000", "1100")
		other.UserName = "lee"
		other.Password = "5678"
		_, err := eng.Create(ctx, other)
		require.NoError(t, err)

		_, err = eng.Edit(ctx, EditRequest{ID: id, RawEnd: "1030", Password: "1234"})
		var cerr *ConflictError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "lee", cerr.BlockedBy)
	})

	t.Run("MoveDate", func(t *testing.T) {
		updated, err := eng.Edit(ctx, EditRequest{ID: id, NewDate: "2026-03-12", Password: "1234"})
		require.NoError(t, err)
		assert.Equal(t, "2026-03-12", updated.Date)
	})

	t.Run("MoveEquipment", func(t *testing.T) {
		updated, err := eng.Edit(ctx, EditRequest{ID: id, NewEquipment: "GC-MS", Password: "1234"})
		require.NoError(t, err)
		assert.Equal(t, "GC-MS", updated.Equipment)

		_, err = eng.Edit(ctx, EditRequest{ID: id, NewEquipment: "NMR", Password: "1234"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("CannotInvertInterval", func(t *testing.T) {
		_, err := eng.Edit(ctx, EditRequest{ID: id, RawStart: "2300", RawEnd: "0300", Password: "1234"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestDelete(t *testing.T) {
	eng := newTestEngine(t, store.NewMemory())
	ctx := context.Background()

	created, err := eng.Create(ctx, createReq("0900", "1000"))
	require.NoError(t, err)
	id := created[0].ID

	t.Run("WrongPassword", func(t *testing.T) {
		err := eng.Delete(ctx, id, "0000", false)
		var uerr *UnauthorizedError
		require.ErrorAs(t, err, &uerr)
	})

	t.Run("CorrectPassword", func(t *testing.T) {
		require.NoError(t, eng.Delete(ctx, id, "1234", false))
		reservations, err := eng.Reservations(ctx)
		require.NoError(t, err)
		assert.Empty(t, reservations)
	})

	t.Run("AdminOverride", func(t *testing.T) {
		created, err := eng.Create(ctx, createReq("0900", "1000"))
		require.NoError(t, err)
		require.NoError(t, eng.Delete(ctx, created[0].ID, "", true))
	})

	t.Run("UnknownID", func(t *testing.T) {
		err := eng.Delete(ctx, "nope", "1234", false)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

// auditFailingStore fails every append to the logs table while passing all
// other traffic through.
type auditFailingStore struct {
	store.TableStore
}

func (s *auditFailingStore) Append(ctx context.Context, table string, rows ...[]string) error {
	if table == store.TableLogs {
		return errors.New("quota exceeded")
	}
	return s.TableStore.Append(ctx, table, rows...)
}

func TestCreate_AuditFailureDoesNotAbort(t *testing.T) {
	eng := newTestEngine(t, &auditFailingStore{TableStore: store.NewMemory()})
	ctx := context.Background()

	created, err := eng.Create(ctx, createReq("0900", "1000"))
	require.NoError(t, err)
	require.Len(t, created, 1)

	reservations, err := eng.Reservations(ctx)
	require.NoError(t, err)
	assert.Len(t, reservations, 1)
}

func TestUpcoming(t *testing.T) {
	eng := newTestEngine(t, store.NewMemory())
	ctx := context.Background()

	// Clock starts at 2026-03-01; everything below is in the future, then we
	// check ordering and filtering by equipment.
	reqs := []CreateRequest{
		createReq("1400", "1500"),
		createWith(func(r *CreateRequest) { r.Date = "2026-03-09"; r.RawStart = "0900"; r.RawEnd = "1000" }),
		createWith(func(r *CreateRequest) { r.RawStart = "0900"; r.RawEnd = "1000" }),
		createWith(func(r *CreateRequest) { r.Equipment = "GC-MS" }),
	}
	for _, req := range reqs {
		_, err := eng.Create(ctx, req)
		require.NoError(t, err)
	}

	upcoming, err := eng.Upcoming(ctx, "HPLC")
	require.NoError(t, err)
	require.Len(t, upcoming, 3)
	assert.Equal(t, "2026-03-09", upcoming[0].Date)
	assert.Equal(t, "09:00", upcoming[1].StartTime)
	assert.Equal(t, "14:00", upcoming[2].StartTime)
}

func TestAuditLog_NewestFirst(t *testing.T) {
	eng := newTestEngine(t, store.NewMemory())
	ctx := context.Background()

	_, err := eng.Create(ctx, createReq("0900", "1000"))
	require.NoError(t, err)
	_, err = eng.Create(ctx, createReq("1000", "1100"))
	require.NoError(t, err)

	log, err := eng.AuditLog(ctx)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.True(t, log[0].Timestamp >= log[1].Timestamp)
}

func TestRecordWater(t *testing.T) {
	eng := newTestEngine(t, store.NewMemory())
	ctx := context.Background()

	t.Run("Valid", func(t *testing.T) {
		usage, err := eng.RecordWater(ctx, "kim", "Lab1", "2.5")
		require.NoError(t, err)
		assert.Equal(t, "2.5", usage.Amount)
		assert.Equal(t, "2026-03-01", usage.Date)
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, tc := range []struct{ user, lab, amount string }{
			{"", "Lab1", "2.5"},
			{"kim", "Lab9", "2.5"},
			{"kim", "Lab1", "0"},
			{"kim", "Lab1", "-1"},
			{"kim", "Lab1", "two liters"},
		} {
			_, err := eng.RecordWater(ctx, tc.user, tc.lab, tc.amount)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr, fmt.Sprintf("%+v", tc))
		}
	})
}

func TestVerifyAdmin(t *testing.T) {
	eng := newTestEngine(t, store.NewMemory())
	assert.True(t, eng.VerifyAdmin(adminPassword))
	assert.False(t, eng.VerifyAdmin("wrong"))
	assert.False(t, eng.VerifyAdmin(""))
}
