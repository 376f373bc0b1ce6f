package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitRedisInvalidURL(t *testing.T) {
	_, err := InitRedis("http://localhost:6379")
	assert.ErrorContains(t, err, "error parsing Redis URL")
}

func TestInitPostgresInvalidURL(t *testing.T) {
	_, err := InitPostgres("postgres://%zz")
	assert.ErrorContains(t, err, "error connecting to database")
}
