package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRootIdentity_Defaults(t *testing.T) {
	id, name := resolveRootIdentity(Config{})
	assert.Equal(t, "root", id)
	assert.Equal(t, "Root", name)
}

func TestResolveRootIdentity_HonorsOverrides(t *testing.T) {
	id, name := resolveRootIdentity(Config{RootResourceID: "org-root", RootResourceName: "Organization Root"})
	assert.Equal(t, "org-root", id)
	assert.Equal(t, "Organization Root", name)
}
