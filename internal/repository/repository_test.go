package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labreserve/internal/models"
	"labreserve/internal/store"
)

func TestRepository_Registries(t *testing.T) {
	repo := New(store.NewMemory())
	ctx := context.Background()

	require.NoError(t, repo.SaveLabs(ctx, []string{"Lab1", "Lab2"}))
	labs, err := repo.Labs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lab1", "Lab2"}, labs)

	require.NoError(t, repo.SaveEquipment(ctx, []string{"HPLC"}))
	eq, err := repo.Equipment(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"HPLC"}, eq)
}

func TestRepository_SkipsBlankRegistryRows(t *testing.T) {
	mem := store.NewMemory()
	repo := New(mem)
	ctx := context.Background()

	require.NoError(t, mem.Write(ctx, store.TableLabs, [][]string{{"Lab1"}, {"  "}, {""}, {"Lab2"}}))
	labs, err := repo.Labs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lab1", "Lab2"}, labs)
}

func TestRepository_Reservations(t *testing.T) {
	repo := New(store.NewMemory())
	ctx := context.Background()

	a := models.Reservation{
		ID: "20260310090000", UserName: "kim", Lab: "Lab1", Equipment: "HPLC",
		Date: "2026-03-10", StartTime: "09:00", EndTime: "10:00", Password: "1234",
	}
	b := models.Reservation{
		ID: "20260310100000", UserName: "lee", Lab: "Lab2", Equipment: "HPLC",
		Date: "2026-03-10", StartTime: "10:00", EndTime: "11:00", Password: "5678",
	}

	require.NoError(t, repo.AppendReservations(ctx, a, b))
	got, err := repo.Reservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Reservation{a, b}, got)

	require.NoError(t, repo.SaveReservations(ctx, []models.Reservation{b}))
	got, err = repo.Reservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Reservation{b}, got)
}

func TestRepository_TrimsSheetStyleTimes(t *testing.T) {
	mem := store.NewMemory()
	repo := New(mem)
	ctx := context.Background()

	require.NoError(t, mem.Write(ctx, store.TableBookings, [][]string{
		{"id1", "kim", "Lab1", "HPLC", "2026-03-10", "09:00:00", "10:00:00", "1234"},
	}))

	got, err := repo.Reservations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "09:00", got[0].StartTime)
	assert.Equal(t, "10:00", got[0].EndTime)
}

func TestRepository_WaterAndLog(t *testing.T) {
	repo := New(store.NewMemory())
	ctx := context.Background()

	w := models.WaterUsage{Date: "2026-03-10", UserName: "kim", Lab: "Lab1", Amount: "2.5"}
	require.NoError(t, repo.AppendWaterUsage(ctx, w))
	usage, err := repo.WaterUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.WaterUsage{w}, usage)

	e := models.LogEntry{Timestamp: "2026-03-10 09:00:00", Action: "create", User: "kim", Details: "HPLC / 09:00~10:00"}
	require.NoError(t, repo.AppendLog(ctx, e))
	log, err := repo.AuditLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.LogEntry{e}, log)
}
