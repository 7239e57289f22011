package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePoint(t *testing.T) {
	p, err := parsePoint("38.5816,-121.4944")
	require.NoError(t, err)
	assert.Equal(t, 38.5816, p.Latitude)
	assert.Equal(t, -121.4944, p.Longitude)

	_, err = parsePoint("138.5816,-121.4944")
	assert.Error(t, err, "latitude out of range")

	_, err = parsePoint("downtown")
	assert.Error(t, err)
}
