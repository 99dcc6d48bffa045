package agent

import "strings"

// roomPlaceholder is replaced by the room name in revival instructions.
const roomPlaceholder = "{room}"

// BuildRevivalInstruction renders the system instruction for a session rebuilt
// from a room's history. A blank room falls back to defaultRoom.
func BuildRevivalInstruction(template, room, defaultRoom string) string {
	room = strings.TrimSpace(room)
	if room == "" {
		room = defaultRoom
	}
	return strings.ReplaceAll(template, roomPlaceholder, room)
}
