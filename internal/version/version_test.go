package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgentAndSummary(t *testing.T) {
	orig := Version
	Version = "1.2.3"
	t.Cleanup(func() { Version = orig })

	assert.Equal(t, "sprout-pricing/1.2.3", UserAgent("sprout-pricing"))
	assert.Equal(t, "sprout 1.2.3\ncommit: unknown\nbuilt: unknown\n", Summary("sprout"))
}
