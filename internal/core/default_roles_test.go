package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDefaultRoles(t *testing.T) {
	assert.Nil(t, ParseDefaultRoles(""))
	assert.Nil(t, ParseDefaultRoles(" , ,"))

	roles := ParseDefaultRoles("user")
	assert.Equal(t, []DefaultRole{{Role: "user"}}, roles)

	roles = ParseDefaultRoles("billing_viewer, user")
	assert.Equal(t, []DefaultRole{
		{ClientID: "billing", Role: "viewer"},
		{Role: "user"},
	}, roles)

	// the client id runs to the last underscore
	roles = ParseDefaultRoles("my_app_reader")
	assert.Equal(t, []DefaultRole{{ClientID: "my_app", Role: "reader"}}, roles)
}

func TestGroupsFor(t *testing.T) {
	defaults := []DefaultRole{
		{Role: "user"},
		{ClientID: "billing", Role: "viewer"},
	}

	assert.Equal(t, []string{"billing_user", "billing_viewer"}, GroupsFor(defaults, "billing"))
	// the qualified entry does not leak onto other clients
	assert.Equal(t, []string{"docs_user"}, GroupsFor(defaults, "docs"))
	assert.Nil(t, GroupsFor(nil, "docs"))
}
