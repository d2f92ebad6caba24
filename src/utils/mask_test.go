package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "postgres://user:xxxxx@db:5432/rates", MaskURL("postgres://user:secret@db:5432/rates"))
	assert.Equal(t, "nats://127.0.0.1:4222", MaskURL("nats://127.0.0.1:4222"))
	assert.Equal(t, "redis://user@host", MaskURL("redis://user@host"))
	assert.Equal(t, "postgres://***", MaskURL("postgres://u:p@[bad"))
}

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{" btcusdt ", "", "   ", "ETHUSDT", "ethusdt"})
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, got)
	assert.Empty(t, NormalizeSymbols(nil))
}
