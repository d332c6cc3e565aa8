// Package settings implements the system settings channel: a single
// openWifiSettings method that opens the Wi-Fi settings screen and degrades to
// the general settings screen when Wi-Fi settings cannot be opened.
package settings

import (
	"context"
	"fmt"
	"log/slog"

	"settings-bridge/pkg/channel"
	"settings-bridge/pkg/events"
	"settings-bridge/pkg/launcher"
)

// ChannelName namespaces this bridge from other channels in the same process.
const ChannelName = "com.example.aerosaur_2nd_sem/system_settings"

// MethodOpenWifiSettings is the only method the bridge implements.
const MethodOpenWifiSettings = "openWifiSettings"

// Reply used when neither screen could be opened.
const (
	ErrCodeUnavailable    = channel.CodeUnavailable
	ErrMessageUnavailable = "Unable to open settings."
)

// Launcher opens an OS settings screen as a new, independent task.
type Launcher interface {
	Launch(ctx context.Context, screen launcher.Screen) error
}

// Publisher receives the outcome of every openWifiSettings call.
type Publisher interface {
	Publish(channel string, evt events.LaunchEvent)
}

// Notifier shows a user-facing notice when the fallback screen was opened.
type Notifier interface {
	Notify(title, message string) error
}

// Bridge handles calls on the system settings channel.
type Bridge struct {
	launcher   Launcher
	publishers []Publisher
	notifier   Notifier
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithPublisher adds an outcome publisher.
func WithPublisher(p Publisher) Option {
	return func(b *Bridge) {
		if p != nil {
			b.publishers = append(b.publishers, p)
		}
	}
}

// WithNotifier enables a notice when the general settings screen is used instead.
func WithNotifier(n Notifier) Option {
	return func(b *Bridge) {
		b.notifier = n
	}
}

// NewBridge creates a settings bridge backed by l.
func NewBridge(l Launcher, opts ...Option) *Bridge {
	b := &Bridge{launcher: l}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register binds the bridge to name, or ChannelName when name is empty.
func (b *Bridge) Register(registry *channel.Registry, name string) {
	if name == "" {
		name = ChannelName
	}
	registry.Register(name, b)
}

// HandleMethodCall implements channel.MethodCallHandler.
// The reply is made before the outcome is reported, so a failing reporter
// cannot change it.
func (b *Bridge) HandleMethodCall(ctx context.Context, call *channel.Call, result channel.Result) {
	switch call.Method {
	case MethodOpenWifiSettings:
		// Launches are fire-and-forget; a caller going away does not cancel them.
		opened, err := b.OpenWifiSettings(context.WithoutCancel(ctx))
		if err != nil {
			result.Error(ErrCodeUnavailable, ErrMessageUnavailable, nil)
		} else {
			// The reply is the same whichever screen opened.
			result.Success(nil)
		}
		b.report(call, opened, err)
	default:
		result.NotImplemented()
	}
}

// OpenWifiSettings opens the Wi-Fi settings screen, falling back to the general
// settings screen. It returns the screen that opened, or an error when neither did.
func (b *Bridge) OpenWifiSettings(ctx context.Context) (launcher.Screen, error) {
	wifiErr := b.tryLaunch(ctx, launcher.ScreenWifi)
	if wifiErr == nil {
		return launcher.ScreenWifi, nil
	}
	slog.Warn("Wi-Fi settings unavailable, falling back to general settings", "error", wifiErr)

	generalErr := b.tryLaunch(ctx, launcher.ScreenGeneral)
	if generalErr == nil {
		return launcher.ScreenGeneral, nil
	}
	slog.Error("Unable to open any settings screen", "wifi_error", wifiErr, "general_error", generalErr)
	return "", fmt.Errorf("open wifi settings: %w; open general settings: %w", wifiErr, generalErr)
}

// tryLaunch converts launcher panics into errors.
func (b *Bridge) tryLaunch(ctx context.Context, screen launcher.Screen) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("launch %s settings panicked: %v", screen, p)
		}
	}()
	if b.launcher == nil {
		return fmt.Errorf("no launcher configured")
	}
	return b.launcher.Launch(ctx, screen)
}

func (b *Bridge) report(call *channel.Call, opened launcher.Screen, err error) {
	evt := events.LaunchEvent{
		CallID:    string(call.ID),
		Method:    call.Method,
		Requested: string(launcher.ScreenWifi),
		Opened:    string(opened),
	}
	switch {
	case err != nil:
		evt.Outcome = events.OutcomeUnavailable
		evt.Error = err.Error()
	case opened == launcher.ScreenGeneral:
		evt.Outcome = events.OutcomeFallback
	default:
		evt.Outcome = events.OutcomeOpened
	}

	for _, p := range b.publishers {
		publish(p, call.Channel, evt)
	}

	if evt.Outcome == events.OutcomeFallback && b.notifier != nil {
		go notifyFallback(b.notifier)
	}
}

func publish(p Publisher, channelName string, evt events.LaunchEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Launch event publisher panicked", "channel", channelName, "panic", r)
		}
	}()
	p.Publish(channelName, evt)
}

// notifyFallback runs off the call path; desktop notifiers can block on the session bus.
func notifyFallback(n Notifier) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Fallback notifier panicked", "panic", r)
		}
	}()
	if err := n.Notify("Wi-Fi settings unavailable", "Opened system settings instead."); err != nil {
		slog.Debug("Failed to show fallback notification", "error", err)
	}
}
