package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
)

// Screen identifies an OS settings screen.
type Screen string

const (
	ScreenWifi    Screen = "wifi"
	ScreenGeneral Screen = "general"
)

// ErrUnknownScreen is returned for a screen with no command list.
var ErrUnknownScreen = errors.New("unknown settings screen")

// ErrUnsupportedOS is returned when no command list exists for the operating system.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// Command is one way of opening a screen: an executable and its arguments.
type Command struct {
	Name string   `yaml:"name" json:"name"`
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`
}

// Starter starts a command without waiting for it to exit.
type Starter func(name string, args ...string) error

// CommandLauncher opens settings screens by starting the first command that launches.
type CommandLauncher struct {
	goos  string
	start Starter

	mu        sync.RWMutex
	overrides map[Screen][]Command
}

// Option configures a CommandLauncher.
type Option func(*CommandLauncher)

// WithStarter replaces the process starter.
func WithStarter(start Starter) Option {
	return func(l *CommandLauncher) {
		l.start = start
	}
}

// WithGOOS selects the command table for the given operating system.
func WithGOOS(goos string) Option {
	return func(l *CommandLauncher) {
		l.goos = strings.ToLower(strings.TrimSpace(goos))
	}
}

// New creates a launcher for the running operating system.
func New(opts ...Option) *CommandLauncher {
	l := &CommandLauncher{
		goos:  runtime.GOOS,
		start: startCommandDetached,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetOverrides replaces the per-screen command lists taken from configuration.
// Screens without an override use the built-in table.
func (l *CommandLauncher) SetOverrides(overrides map[Screen][]Command) {
	copied := make(map[Screen][]Command, len(overrides))
	for screen, cmds := range overrides {
		if len(cmds) == 0 {
			continue
		}
		copied[screen] = append([]Command(nil), cmds...)
	}

	l.mu.Lock()
	l.overrides = copied
	l.mu.Unlock()

	slog.Info("Launcher command overrides updated", "screens", len(copied))
}

// Commands returns the ordered command list used for a screen.
func (l *CommandLauncher) Commands(screen Screen) ([]Command, error) {
	l.mu.RLock()
	override, ok := l.overrides[screen]
	l.mu.RUnlock()
	if ok {
		return override, nil
	}
	return CommandsForOS(l.goos, screen)
}

// Launch opens the screen as a new, independent task. It returns once a command
// has started; it never waits for the screen to close.
func (l *CommandLauncher) Launch(ctx context.Context, screen Screen) error {
	commands, err := l.Commands(screen)
	if err != nil {
		return err
	}
	if len(commands) == 0 {
		return fmt.Errorf("%s settings are not supported on %s", screen, l.goos)
	}

	slog.Debug("Opening settings screen", "screen", screen, "goos", l.goos, "attempts", len(commands))

	var errs []error
	for i, spec := range commands {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		attempt := i + 1
		err := l.start(spec.Name, spec.Args...)
		if err == nil {
			slog.Info("Opened settings screen", "screen", screen, "command", spec.Name, "attempt", attempt)
			return nil
		}
		slog.Debug("Settings command failed",
			"screen", screen,
			"command", spec.Name,
			"args", spec.Args,
			"attempt", attempt,
			"error", err,
		)
		errs = append(errs, fmt.Errorf("%s: %w", spec.Name, err))
	}

	joined := errors.Join(errs...)
	slog.Warn("Failed to open settings screen", "screen", screen, "goos", l.goos, "error", joined)
	return joined
}
