package whitelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecker_IsWhitelisted(t *testing.T) {
	c := NewChecker([]string{" Checkr.com ", "onboarding@swift.example", ".mail.example"}, nil)
	assert.True(t, c.Enabled())

	assert.True(t, c.IsWhitelisted("noreply@checkr.com"))
	assert.True(t, c.IsWhitelisted("Checkr <Alerts@US.Checkr.com>"))
	assert.True(t, c.IsWhitelisted("onboarding@swift.example"))
	assert.True(t, c.IsWhitelisted("x@mail.example"))

	assert.False(t, c.IsWhitelisted("support@swift.example"))
	assert.False(t, c.IsWhitelisted("noreply@notcheckr.com"))
	assert.False(t, c.IsWhitelisted("not-an-address"))
	assert.False(t, c.IsWhitelisted(""))
}

func TestChecker_AllowAll(t *testing.T) {
	c := NewChecker([]string{"*"}, nil)
	assert.True(t, c.IsWhitelisted("anyone@anywhere.example"))

	empty := NewChecker(nil, nil)
	assert.False(t, empty.Enabled())
}
