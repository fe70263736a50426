package engine

import "context"

// AddLab registers a new lab name. Callers gate this behind the admin
// password; the engine only enforces shape and uniqueness.
func (e *Engine) AddLab(ctx context.Context, name string) error {
	return e.addName(ctx, "lab", name)
}

// AddEquipment registers a new equipment name.
func (e *Engine) AddEquipment(ctx context.Context, name string) error {
	return e.addName(ctx, "equipment", name)
}

// RemoveLab drops a lab from the registry. Reservations and usage rows
// referencing it keep the dangling name, exactly as the sheet-backed original
// behaved; rename first if the history should follow.
func (e *Engine) RemoveLab(ctx context.Context, name string) error {
	return e.removeName(ctx, "lab", name)
}

// RemoveEquipment drops an equipment entry from the registry.
func (e *Engine) RemoveEquipment(ctx context.Context, name string) error {
	return e.removeName(ctx, "equipment", name)
}

func (e *Engine) addName(ctx context.Context, kind, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" {
		return validationf("%s name is required", kind)
	}

	registry, err := e.readRegistry(ctx, kind)
	if err != nil {
		return err
	}
	if contains(registry, name) {
		return &DuplicateNameError{Name: name}
	}

	if err := e.writeRegistry(ctx, kind, append(registry, name)); err != nil {
		return storeErr("write "+kind+" registry", err)
	}

	e.audit(ctx, "add_"+kind, "admin", name)
	e.logger.Info().Str("kind", kind).Str("name", name).Msg("registry entry added")
	return nil
}

func (e *Engine) removeName(ctx context.Context, kind, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	registry, err := e.readRegistry(ctx, kind)
	if err != nil {
		return err
	}

	remaining := make([]string, 0, len(registry))
	for _, n := range registry {
		if n != name {
			remaining = append(remaining, n)
		}
	}
	if len(remaining) == len(registry) {
		return validationf("unknown %s %q", kind, name)
	}

	if err := e.writeRegistry(ctx, kind, remaining); err != nil {
		return storeErr("write "+kind+" registry", err)
	}

	e.audit(ctx, "remove_"+kind, "admin", name)
	e.logger.Info().Str("kind", kind).Str("name", name).Msg("registry entry removed")
	return nil
}
