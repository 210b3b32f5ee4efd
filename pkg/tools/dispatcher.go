package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ebpro/pkg/api"
	"golang.org/x/sync/semaphore"
)

// Notes returned to callers on success.
const (
	NoteDone          = "Дію виконано успішно."
	NoteSimulationRun = "Симуляцію запущено. Перевірте вікно EasySimulator."
)

// Dispatcher routes actions to the controller registered for them.
// EBPro is a single GUI process that cannot take interleaved automation, so
// at most one action executes at a time across the whole process.
type Dispatcher struct {
	mu          sync.RWMutex
	controllers map[api.Action]Controller
	exclusive   *semaphore.Weighted
}

// NewDispatcher creates a dispatcher with the given controllers registered.
func NewDispatcher(controllers ...Controller) *Dispatcher {
	d := &Dispatcher{
		controllers: make(map[api.Action]Controller),
		exclusive:   semaphore.NewWeighted(1),
	}
	for _, c := range controllers {
		d.Register(c)
	}
	return d
}

// Register binds every capability of c to c, replacing earlier bindings.
func (d *Dispatcher) Register(c Controller) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range c.Capabilities() {
		d.controllers[a] = c
	}
}

// Supported returns the registered actions in canonical order.
func (d *Dispatcher) Supported() []api.Action {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]api.Action, 0, len(d.controllers))
	for _, a := range api.Actions() {
		if _, ok := d.controllers[a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Dispatch executes action with params. Failures from the controller are
// returned unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, action api.Action, params map[string]string) (*api.Result, error) {
	d.mu.RLock()
	c, ok := d.controllers[action]
	d.mu.RUnlock()
	if !ok {
		return nil, api.NewFailure(api.KindUnsupported,
			fmt.Sprintf("Дія %s ще не реалізована.", action),
			"Оновіть Mini-MCP або зверніться до розробника для додавання функціоналу.")
	}

	if name, missing := action.MissingParam(params); missing {
		return nil, api.NewFailure(api.KindMissingArgument,
			fmt.Sprintf("Не вистачає параметра '%s'.", name),
			"Передайте значення у полі args або в тексті запиту.")
	}

	if err := d.exclusive.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for the previous action: %w", err)
	}
	defer d.exclusive.Release(1)

	slog.InfoContext(ctx, "Dispatching action", "action", action)
	resp, err := c.Execute(ctx, ActionRequest{Action: action, Params: params})
	if err != nil {
		return nil, err
	}

	result := &api.Result{Action: action, Notes: NoteDone}
	if resp != nil {
		result.File = resp.File
	}
	if action == api.ActionRunOfflineSim {
		result.Notes = NoteSimulationRun
	}
	return result, nil
}
