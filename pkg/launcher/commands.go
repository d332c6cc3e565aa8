package launcher

import (
	"fmt"
	"strings"
)

// androidNewTaskFlag is Intent.FLAG_ACTIVITY_NEW_TASK.
const androidNewTaskFlag = "0x10000000"

var androidCommands = map[Screen][]Command{
	ScreenWifi: {
		{Name: "am", Args: []string{"start", "-a", "android.settings.WIFI_SETTINGS", "-f", androidNewTaskFlag}},
	},
	ScreenGeneral: {
		{Name: "am", Args: []string{"start", "-a", "android.settings.SETTINGS", "-f", androidNewTaskFlag}},
	},
}

var linuxCommands = map[Screen][]Command{
	ScreenWifi: {
		{Name: "gnome-control-center", Args: []string{"wifi"}},
		{Name: "systemsettings6", Args: []string{"kcm_networkmanagement"}},
		{Name: "systemsettings5", Args: []string{"kcm_networkmanagement"}},
		{Name: "systemsettings", Args: []string{"kcm_networkmanagement"}},
		{Name: "kcmshell6", Args: []string{"kcm_networkmanagement"}},
		{Name: "kcmshell5", Args: []string{"kcm_networkmanagement"}},
		{Name: "nm-connection-editor"},
	},
	ScreenGeneral: {
		{Name: "gnome-control-center"},
		{Name: "systemsettings6"},
		{Name: "systemsettings5"},
		{Name: "systemsettings"},
		{Name: "xfce4-settings-manager"},
		{Name: "lxqt-config"},
	},
}

var windowsCommands = map[Screen][]Command{
	ScreenWifi: {
		{Name: "cmd", Args: []string{"/c", "start", "", "ms-settings:network-wifi"}},
	},
	ScreenGeneral: {
		{Name: "cmd", Args: []string{"/c", "start", "", "ms-settings:"}},
		{Name: "control"},
	},
}

var darwinCommands = map[Screen][]Command{
	ScreenWifi: {
		{Name: "open", Args: []string{"x-apple.systempreferences:com.apple.wifi-settings-extension"}},
		{Name: "open", Args: []string{"x-apple.systempreferences:com.apple.preference.network"}},
	},
	ScreenGeneral: {
		{Name: "open", Args: []string{"-b", "com.apple.systempreferences"}},
	},
}

// CommandsForOS returns the built-in command list for a screen on goos.
func CommandsForOS(goos string, screen Screen) ([]Command, error) {
	var table map[Screen][]Command
	switch strings.ToLower(strings.TrimSpace(goos)) {
	case "android":
		table = androidCommands
	case "linux":
		table = linuxCommands
	case "windows":
		table = windowsCommands
	case "darwin":
		table = darwinCommands
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, goos)
	}

	commands, ok := table[screen]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScreen, screen)
	}
	return commands, nil
}

// ParseScreen maps a configuration key to a Screen.
func ParseScreen(raw string) (Screen, error) {
	switch Screen(strings.ToLower(strings.TrimSpace(raw))) {
	case ScreenWifi:
		return ScreenWifi, nil
	case ScreenGeneral:
		return ScreenGeneral, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScreen, raw)
	}
}
