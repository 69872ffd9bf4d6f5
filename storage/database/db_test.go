package database

import (
	"io/fs"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/eagleeye/core"
)

func TestDSN(t *testing.T) {
	conf := &core.Config{
		Remote: core.RemoteConfig{
			Engine:        core.RemoteEnginePostgres,
			Host:          "db.local",
			Port:          "5433",
			User:          "eagle",
			Password:      "p@ss",
			AdminUser:     "root",
			AdminPassword: "toor",
			Name:          "eagleeye",
		},
	}

	tests := []struct {
		name     string
		dbName   string
		admin    bool
		tls      bool
		wantUser string
		wantSSL  string
	}{
		{name: "app user", dbName: "eagleeye", wantUser: "eagle", wantSSL: "require"},
		{name: "admin user", dbName: "postgres", admin: true, wantUser: "root", wantSSL: "require"},
		{name: "TLS disabled", dbName: "eagleeye", tls: true, wantUser: "eagle", wantSSL: "disable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf.Remote.DisableTLS = tt.tls
			u, err := url.Parse(DSN(tt.dbName, tt.admin, conf))
			require.NoError(t, err)

			assert.Equal(t, "postgres", u.Scheme)
			assert.Equal(t, "db.local:5433", u.Host)
			assert.Equal(t, "/"+tt.dbName, u.Path)
			assert.Equal(t, tt.wantUser, u.User.Username())
			assert.Equal(t, tt.wantSSL, u.Query().Get("sslmode"))
			assert.Equal(t, "utc", u.Query().Get("timezone"))
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, migrationsDir+"/*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"migrations/00001_create_tables.sql",
		"migrations/00002_notify_changes.sql",
	}, files)
}
