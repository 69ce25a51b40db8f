package postgres_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/adapter/postgres"
	"github.com/roach88/caminte/internal/testutil"
)

type postgresSuite struct {
	testutil.AdapterSuite
}

// TestPostgresContract runs against the database named by
// CAMINTE_TEST_POSTGRES_URL. Its Person and Tag tables are emptied.
func TestPostgresContract(t *testing.T) {
	url := os.Getenv("CAMINTE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("CAMINTE_TEST_POSTGRES_URL not set")
	}
	suite.Run(t, &postgresSuite{AdapterSuite: testutil.AdapterSuite{
		Open: func() adapter.Adapter { return postgres.New(adapter.Settings{URL: url}) },
	}})
}

func TestConnString(t *testing.T) {
	tests := []struct {
		name string
		in   adapter.Settings
		want string
	}{
		{"url wins", adapter.Settings{URL: "postgres://u@h/db", Host: "ignored"}, "postgres://u@h/db"},
		{"defaults", adapter.Settings{Database: "app"}, "postgres://localhost/app"},
		{"full", adapter.Settings{Host: "db", Port: 5433, Database: "app", Username: "u", Password: "p w"}, "postgres://u:p%20w@db:5433/app"},
		{"user only", adapter.Settings{Host: "db", Database: "app", Username: "u"}, "postgres://u@db/app"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, postgres.ConnString(tt.in))
		})
	}
}
