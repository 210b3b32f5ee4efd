package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"time"

	"ebpro/pkg/api"
	"ebpro/pkg/config"
	"ebpro/pkg/nlp"
)

// Dispatcher executes a classified action. *tools.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, action api.Action, params map[string]string) (*api.Result, error)
	Supported() []api.Action
}

// CommandHandler turns incoming instructions into dispatched actions.
// It checks the caller token, classifies free text with the nlp parser and
// forwards the outcome to the dispatcher.
type CommandHandler struct {
	cfg        *config.Config // Immutable application configuration
	dispatcher Dispatcher     // Executes the actions, one at a time
}

// NewCommandHandler wires a CommandHandler to cfg and d.
func NewCommandHandler(cfg *config.Config, d Dispatcher) *CommandHandler {
	return &CommandHandler{cfg: cfg, dispatcher: d}
}

// Actions returns the actions the dispatcher can execute.
func (h *CommandHandler) Actions() []api.Action {
	return h.dispatcher.Supported()
}

// Handle authorizes, classifies and executes a free-text instruction.
func (h *CommandHandler) Handle(ctx context.Context, in *api.Instruction) (*api.Result, error) {
	start := time.Now()
	slog.InfoContext(ctx, "Instruction received",
		"channel", in.Session.ChannelID, "user", in.Session.Username, "text", in.Text, "args", len(in.Args))

	if err := h.authorize(in.Token, in.Preauthorized); err != nil {
		slog.WarnContext(ctx, "Rejected instruction with an invalid token", "channel", in.Session.ChannelID)
		return nil, err
	}

	cmd, err := nlp.Parse(in.Text, in.Args)
	if err != nil {
		slog.ErrorContext(ctx, "Instruction not understood", "error", err)
		return nil, err
	}
	slog.InfoContext(ctx, "Instruction classified", "action", cmd.Action, "params", cmd.Params)

	return h.run(ctx, cmd.Action, cmd.Params, start)
}

// Execute authorizes and executes a structured action call.
func (h *CommandHandler) Execute(ctx context.Context, req *api.ActionCall) (*api.Result, error) {
	start := time.Now()
	slog.InfoContext(ctx, "Action call received",
		"channel", req.Session.ChannelID, "user", req.Session.Username, "action", req.Action)

	if err := h.authorize(req.Token, req.Preauthorized); err != nil {
		slog.WarnContext(ctx, "Rejected action call with an invalid token", "channel", req.Session.ChannelID)
		return nil, err
	}

	params := make(map[string]string, len(req.Args))
	for k, v := range req.Args {
		params[k] = v
	}
	return h.run(ctx, req.Action, params, start)
}

func (h *CommandHandler) run(ctx context.Context, action api.Action, params map[string]string, start time.Time) (*api.Result, error) {
	res, err := h.dispatcher.Dispatch(ctx, action, params)
	if err != nil {
		if _, ok := api.AsFailure(err); ok {
			slog.ErrorContext(ctx, "Action failed", "action", action, "error", err, "duration", time.Since(start).String())
		} else {
			slog.ErrorContext(ctx, "Unexpected error while executing action", "action", action, "error", err, "duration", time.Since(start).String())
		}
		return nil, err
	}
	slog.InfoContext(ctx, "Action finished", "action", action, "file", res.File, "duration", time.Since(start).String())
	return res, nil
}

// authorize enforces API_TOKEN when it is configured.
func (h *CommandHandler) authorize(token string, preauthorized bool) error {
	if h.cfg.APIToken == "" || preauthorized {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.APIToken)) == 1 {
		return nil
	}
	return api.NewFailure(api.KindUnauthorized,
		"Потрібен коректний API token.",
		"Встановіть правильний token у config.json або у полі запиту.")
}
