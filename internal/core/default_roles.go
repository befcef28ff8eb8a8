package core

import (
	"strings"
)

// DefaultRole is one configured default-group entry, parsed once at
// configuration load. Bare role names parse with an empty ClientID and
// attach to whichever client a token is being minted for; qualified
// "{clientID}_{role}" entries attach only to their named client.
type DefaultRole struct {
	ClientID string
	Role     string
}

// ParseDefaultRoles parses the comma-separated DEFAULT_ROLES config value.
// An entry containing an underscore is treated as fully qualified; the
// client id is everything before the last underscore. Empty entries are
// skipped.
func ParseDefaultRoles(raw string) []DefaultRole {
	var roles []DefaultRole
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if idx := strings.LastIndex(entry, "_"); idx > 0 && idx < len(entry)-1 {
			roles = append(roles, DefaultRole{
				ClientID: entry[:idx],
				Role:     entry[idx+1:],
			})
			continue
		}
		roles = append(roles, DefaultRole{Role: entry})
	}
	return roles
}

// GroupsFor renders the default roles applicable to the given client.
func GroupsFor(defaults []DefaultRole, clientID string) []string {
	var groups []string
	for _, d := range defaults {
		if d.ClientID != "" && d.ClientID != clientID {
			continue
		}
		groups = append(groups, clientID+"_"+d.Role)
	}
	return groups
}
