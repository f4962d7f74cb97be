package database

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/counseling-booking-api/pkg/config"
)

func TestIsWriteRace(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"unique", &pq.Error{Code: "23505"}, true},
		{"serialization wrapped", fmt.Errorf("insert appointment: %w", &pq.Error{Code: "40001"}), true},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"foreign key", &pq.Error{Code: "23503"}, false},
		{"plain", sql.ErrNoRows, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsWriteRace(tc.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "40001"}))
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", dsn)
}
