package engine

import (
	"context"

	"labreserve/internal/events"
	"labreserve/internal/metrics"
	"labreserve/internal/models"
)

// RenameLab renames a lab and propagates the new name through every
// reservation and water-usage row referencing it by value.
func (e *Engine) RenameLab(ctx context.Context, oldName, newName string) error {
	return e.rename(ctx, "lab", oldName, newName)
}

// RenameEquipment renames an equipment entry and propagates the new name
// through every reservation referencing it.
func (e *Engine) RenameEquipment(ctx context.Context, oldName, newName string) error {
	return e.rename(ctx, "equipment", oldName, newName)
}

// rename performs the cascading update. The store has no cross-table
// transaction, so all replacement tables are computed up front and written
// sequentially; if a later write fails the earlier ones are rolled back from
// the pre-read snapshots, best effort.
func (e *Engine) rename(ctx context.Context, kind, oldName, newName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if newName == "" {
		metrics.IncReservationRejected("validation")
		return validationf("new name is required")
	}

	registry, err := e.readRegistry(ctx, kind)
	if err != nil {
		return err
	}
	if contains(registry, newName) {
		metrics.IncReservationRejected("duplicate")
		return &DuplicateNameError{Name: newName}
	}
	if !contains(registry, oldName) {
		metrics.IncReservationRejected("validation")
		return validationf("unknown %s %q", kind, oldName)
	}

	reservations, err := e.repo.Reservations(ctx)
	if err != nil {
		return storeErr("read reservations", err)
	}
	var usage []models.WaterUsage
	if kind == "lab" {
		usage, err = e.repo.WaterUsage(ctx)
		if err != nil {
			return storeErr("read water usage", err)
		}
	}

	// Stage every replacement before the first write.
	newRegistry := make([]string, len(registry))
	for i, n := range registry {
		if n == oldName {
			n = newName
		}
		newRegistry[i] = n
	}

	newReservations := make([]models.Reservation, len(reservations))
	copy(newReservations, reservations)
	for i := range newReservations {
		switch kind {
		case "lab":
			if newReservations[i].Lab == oldName {
				newReservations[i].Lab = newName
			}
		case "equipment":
			if newReservations[i].Equipment == oldName {
				newReservations[i].Equipment = newName
			}
		}
	}

	var newUsage []models.WaterUsage
	if kind == "lab" {
		newUsage = make([]models.WaterUsage, len(usage))
		copy(newUsage, usage)
		for i := range newUsage {
			if newUsage[i].Lab == oldName {
				newUsage[i].Lab = newName
			}
		}
	}

	if err := e.writeRegistry(ctx, kind, newRegistry); err != nil {
		return storeErr("write "+kind+" registry", err)
	}
	if err := e.repo.SaveReservations(ctx, newReservations); err != nil {
		e.rollbackRegistry(ctx, kind, registry)
		return storeErr("write reservations", err)
	}
	if kind == "lab" {
		if err := e.repo.SaveWaterUsage(ctx, newUsage); err != nil {
			e.rollbackRegistry(ctx, kind, registry)
			if rbErr := e.repo.SaveReservations(ctx, reservations); rbErr != nil {
				e.logger.Error().Err(rbErr).Msg("rename rollback failed; reservations left renamed")
			}
			return storeErr("write water usage", err)
		}
	}

	metrics.IncRegistryRenamed(kind)
	e.audit(ctx, "rename_"+kind, "admin", oldName+" -> "+newName)
	e.publish(events.TypeRegistryRenamed, events.RenameEvent{Kind: kind, Old: oldName, New: newName})
	e.logger.Info().Str("kind", kind).Str("old", oldName).Str("new", newName).Msg("registry renamed")
	return nil
}

func (e *Engine) rollbackRegistry(ctx context.Context, kind string, snapshot []string) {
	if err := e.writeRegistry(ctx, kind, snapshot); err != nil {
		e.logger.Error().Err(err).Str("kind", kind).Msg("rename rollback failed; registry left renamed")
	}
}

func (e *Engine) readRegistry(ctx context.Context, kind string) ([]string, error) {
	if kind == "lab" {
		labs, err := e.repo.Labs(ctx)
		if err != nil {
			return nil, storeErr("read lab registry", err)
		}
		return labs, nil
	}
	eq, err := e.repo.Equipment(ctx)
	if err != nil {
		return nil, storeErr("read equipment registry", err)
	}
	return eq, nil
}

func (e *Engine) writeRegistry(ctx context.Context, kind string, names []string) error {
	if kind == "lab" {
		return e.repo.SaveLabs(ctx, names)
	}
	return e.repo.SaveEquipment(ctx, names)
}
