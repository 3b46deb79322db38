package link

import "strings"

// Command is a rover or camera motion token understood by the rover firmware.
type Command string

const (
	Forward  Command = "Forward"
	Backward Command = "Backward"
	Left     Command = "Left"
	Right    Command = "Right"
	Stop     Command = "Stop"
	Mode     Command = "Mode"

	CamUp    Command = "Cam_Up"
	CamDown  Command = "Cam_Down"
	CamLeft  Command = "Cam_Left"
	CamRight Command = "Cam_Right"
	CamReset Command = "Cam_Reset"
)

// Commands lists every command token in panel order.
var Commands = []Command{
	Forward, Backward, Left, Right, Stop, Mode,
	CamUp, CamDown, CamLeft, CamRight, CamReset,
}

// keyBindings maps keyboard shortcuts to the movement buttons they mirror.
var keyBindings = map[string]Command{
	"w": Forward,
	"s": Backward,
	"a": Left,
	"d": Right,
	"f": Stop,
	"m": Mode,
}

// ParseCommand returns the command for an exact token.
func ParseCommand(s string) (Command, bool) {
	for _, c := range Commands {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// CommandForKey resolves a key press (case-insensitive) to a command.
func CommandForKey(key string) (Command, bool) {
	c, ok := keyBindings[strings.ToLower(key)]
	return c, ok
}

// Wire returns the bytes written to the serial link for c.
func (c Command) Wire() []byte {
	return []byte(string(c) + "\n")
}
