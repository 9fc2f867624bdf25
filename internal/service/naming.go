package service

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxRoomNameLength is the longest room name the platform accepts
const MaxRoomNameLength = 100

const fallbackTemplate = "{username}'s Room"

// NameVars are the values substituted into a naming template
type NameVars struct {
	Username    string
	DisplayName string
	Tenant      string
	Count       int
}

// ResolveName fills {username}, {displayname}, {tenant} and {count} in template.
// {guild} is accepted as an alias of {tenant}.
func ResolveName(template string, vars NameVars) string {
	displayName := vars.DisplayName
	if displayName == "" {
		displayName = vars.Username
	}

	r := strings.NewReplacer(
		"{username}", vars.Username,
		"{displayname}", displayName,
		"{tenant}", vars.Tenant,
		"{guild}", vars.Tenant,
		"{count}", strconv.Itoa(vars.Count),
	)

	name := strings.TrimSpace(r.Replace(template))
	if name == "" {
		name = strings.TrimSpace(r.Replace(fallbackTemplate))
	}
	return truncateRunes(name, MaxRoomNameLength)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
