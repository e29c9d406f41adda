package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/basmagi-quiz/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "quiz", Password: "pw", Name: "basmagi", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=quiz password=pw dbname=basmagi sslmode=disable", dsn)
}
