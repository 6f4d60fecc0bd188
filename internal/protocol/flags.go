package protocol

import (
	"strings"

	"dispense/internal/models"
)

var flagNames = map[string]models.Flags{
	"coke":     models.FlagCoke,
	"wheel":    models.FlagWheel,
	"meta":     models.FlagMeta,
	"door":     models.FlagDoor,
	"internal": models.FlagInternal,
	"disabled": models.FlagDisabled,
}

const roleBits = models.FlagRoleMask

// parseFlagEdits reads a comma-separated list of [+|-]name edits into a
// mask and the values for the masked bits. "user" clears every role bit.
// When ok is false, bad holds the offending token.
func parseFlagEdits(list string) (mask, value models.Flags, bad string, ok bool) {
	for _, token := range strings.Split(list, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		name, unset := token, false
		switch token[0] {
		case '-':
			unset = true
			name = token[1:]
		case '+':
			name = token[1:]
		}
		name = strings.ToLower(name)
		if name == "" {
			return 0, 0, token, false
		}
		if name == "user" {
			mask |= roleBits
			value &^= roleBits
			continue
		}
		flag, known := flagNames[name]
		if !known {
			return 0, 0, token[len(token)-len(name):], false
		}
		mask |= flag
		if unset {
			value &^= flag
		} else {
			value |= flag
		}
	}
	return mask, value, "", true
}
