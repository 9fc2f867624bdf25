package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestResolveName(t *testing.T) {
	vars := NameVars{Username: "ada", DisplayName: "Ada L", Tenant: "Engine Room", Count: 3}

	tests := []struct {
		template string
		want     string
	}{
		{"{username}'s Room", "ada's Room"},
		{"{displayname} #{count}", "Ada L #3"},
		{"{tenant} / {guild}", "Engine Room / Engine Room"},
		{"  Lounge  ", "Lounge"},
		{"", "ada's Room"},
		{"{unknown}", "{unknown}"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveName(tt.template, vars), tt.template)
	}
}

func TestResolveName_DisplayNameFallsBackToUsername(t *testing.T) {
	assert.Equal(t, "ada", ResolveName("{displayname}", NameVars{Username: "ada"}))
}

func TestResolveName_Truncates(t *testing.T) {
	name := ResolveName(strings.Repeat("é", 150), NameVars{})
	assert.Equal(t, MaxRoomNameLength, utf8.RuneCountInString(name))
}
