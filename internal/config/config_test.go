package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
acunetix:
  url: https://scanner.local:3443/api/v1
  apiKey: k
  reportTemplateId: 11111111-1111-1111-1111-111111111115
email:
  from: a@b.c
  recipients: [x@y.z]
  smtpServer: smtp.local
settings:
  reportRetryDelay: 2s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Second, cfg.Settings.ReportRetryDelay)
	assert.Equal(t, 10, cfg.Settings.ReportMaxRetries)
	assert.Equal(t, time.Hour, cfg.Settings.ScanCheckDelay)
	assert.Equal(t, "file", cfg.Registry.Driver)
	assert.True(t, cfg.Acunetix.VerifySSL)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Acunetix.URL = "ftp://scanner"
	cfg.Acunetix.ReportTemplateID = "not-a-uuid"
	cfg.Settings.ReportMaxRetries = -1
	cfg.Registry.Driver = "redis"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"acunetix.apiKey is required",
		"acunetix.url must be an http or https URL",
		"reportTemplateId must be a UUID",
		"email.recipients",
		"settings.reportMaxRetries",
		"registry.driver",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestDefaultYAML_ParsesAndValidates(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, yaml.Unmarshal(DefaultYAML(), cfg))
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Settings.ReportRetryDelay)
}

func TestDSNs(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Host = "db"
	cfg.Database.Port = 5432
	cfg.Database.User = "svc"
	cfg.Database.Password = "p@ss"
	cfg.Database.Name = "mailer"

	assert.Equal(t, "svc:p@ss@tcp(db:5432)/mailer?parseTime=true&charset=utf8mb4&loc=UTC", cfg.MySQLDSN())
	assert.Equal(t, "postgres://svc:p%40ss@db:5432/mailer?sslmode=disable", cfg.PostgresDSN())
}
