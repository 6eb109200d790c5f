package logger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobvyne-crawler/internal/logger"
)

func TestNew_BuildsUsableLogger(t *testing.T) {
	l, err := logger.New(logger.Config{Level: "warn", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)

	c := logger.Component(l, "ats:workday")
	assert.NotSame(t, l, c)

	c.Debug("filtered")
	c.Warn("kept", logger.String("employer", "acme"), logger.Error(errors.New("boom")))
}

func TestNop_WithReturnsSelf(t *testing.T) {
	n := logger.NewNop()
	assert.Same(t, n, n.With(logger.Int("n", 1)))
	assert.NoError(t, n.Sync())
}
