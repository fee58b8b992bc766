package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Acunetix struct {
		URL              string        `yaml:"url"`
		APIKey           string        `yaml:"apiKey"`
		ReportTemplateID string        `yaml:"reportTemplateId"`
		VerifySSL        bool          `yaml:"verifySSL"`
		Timeout          time.Duration `yaml:"timeout"`
		MaxRetries       int           `yaml:"maxRetries"`
		BackoffFactor    float64       `yaml:"backoffFactor"`
	} `yaml:"acunetix"`

	Email struct {
		Username   string   `yaml:"username"`
		Password   string   `yaml:"password"`
		From       string   `yaml:"from"`
		Recipients []string `yaml:"recipients"`
		SMTPServer string   `yaml:"smtpServer"`
		SMTPPort   int      `yaml:"smtpPort"`
		UseTLS     bool     `yaml:"useTLS"`
	} `yaml:"email"`

	Registry struct {
		// Driver is one of file, mysql, postgres, minio.
		Driver    string `yaml:"driver"`
		Path      string `yaml:"path"`
		Table     string `yaml:"table"`
		ObjectKey string `yaml:"objectKey"`
	} `yaml:"registry"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Settings struct {
		ReportMaxRetries int           `yaml:"reportMaxRetries"`
		ReportRetryDelay time.Duration `yaml:"reportRetryDelay"`
		ScanCheckDelay   time.Duration `yaml:"scanCheckDelay"`
		RequestTimeout   time.Duration `yaml:"requestTimeout"`
		// SinceWindow, when set, skips scans completed longer ago than this.
		SinceWindow    time.Duration `yaml:"sinceWindow"`
		CleanupReports bool          `yaml:"cleanupReports"`
	} `yaml:"settings"`

	Server struct {
		Port           int      `yaml:"port"`
		APIKeys        []string `yaml:"apiKeys"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		RateLimit      float64  `yaml:"rateLimit"`
		RateBurst      int      `yaml:"rateBurst"`
	} `yaml:"server"`

	AI struct {
		Enabled bool   `yaml:"enabled"`
		APIKey  string `yaml:"apiKey"`
		Model   string `yaml:"model"`
	} `yaml:"ai"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
}

// Defaults returns a Config with every optional value filled in.
func Defaults() *Config {
	var c Config
	c.Acunetix.VerifySSL = true
	c.Acunetix.Timeout = 30 * time.Second
	c.Acunetix.MaxRetries = 3
	c.Acunetix.BackoffFactor = 0.3
	c.Email.SMTPPort = 587
	c.Email.UseTLS = true
	c.Registry.Driver = "file"
	c.Registry.Path = "processed_scans.json"
	c.Registry.Table = "processed_scans"
	c.Registry.ObjectKey = "registry/processed_scans.json"
	c.Settings.ReportMaxRetries = 10
	c.Settings.ReportRetryDelay = 10 * time.Second
	c.Settings.ScanCheckDelay = time.Hour
	c.Settings.RequestTimeout = 30 * time.Second
	c.Server.Port = 8080
	c.Server.RateLimit = 1
	c.Server.RateBurst = 5
	c.AI.Model = "gpt-4o-mini"
	c.Log.Level = "info"
	return &c
}

// Load baca file config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	req := func(v, key string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	req(c.Acunetix.URL, "acunetix.url")
	req(c.Acunetix.APIKey, "acunetix.apiKey")
	req(c.Acunetix.ReportTemplateID, "acunetix.reportTemplateId")
	if c.Acunetix.URL != "" {
		u, err := url.Parse(c.Acunetix.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("acunetix.url must be an http or https URL, got %q", c.Acunetix.URL))
		}
	}
	if c.Acunetix.ReportTemplateID != "" {
		if _, err := uuid.Parse(c.Acunetix.ReportTemplateID); err != nil {
			errs = append(errs, fmt.Errorf("acunetix.reportTemplateId must be a UUID: %w", err))
		}
	}
	if c.Acunetix.MaxRetries < 0 {
		errs = append(errs, errors.New("acunetix.maxRetries must be >= 0"))
	}
	if c.Acunetix.BackoffFactor < 0 {
		errs = append(errs, errors.New("acunetix.backoffFactor must be >= 0"))
	}

	req(c.Email.SMTPServer, "email.smtpServer")
	req(c.Email.From, "email.from")
	if len(c.Email.Recipients) == 0 {
		errs = append(errs, errors.New("email.recipients needs at least one address"))
	}
	if c.Email.SMTPPort <= 0 || c.Email.SMTPPort > 65535 {
		errs = append(errs, fmt.Errorf("email.smtpPort out of range: %d", c.Email.SMTPPort))
	}

	switch c.Registry.Driver {
	case "file":
		req(c.Registry.Path, "registry.path")
	case "mysql", "postgres":
		req(c.Database.Host, "database.host")
		req(c.Database.Name, "database.name")
		req(c.Registry.Table, "registry.table")
	case "minio":
		req(c.Minio.Endpoint, "minio.endpoint")
		req(c.Minio.BucketName, "minio.bucketName")
		req(c.Registry.ObjectKey, "registry.objectKey")
	default:
		errs = append(errs, fmt.Errorf("registry.driver must be file, mysql, postgres or minio, got %q", c.Registry.Driver))
	}

	if c.Settings.ReportMaxRetries < 0 {
		errs = append(errs, errors.New("settings.reportMaxRetries must be >= 0"))
	}
	if c.Settings.ReportRetryDelay < 0 {
		errs = append(errs, errors.New("settings.reportRetryDelay must be >= 0"))
	}
	if c.Settings.ScanCheckDelay < 0 {
		errs = append(errs, errors.New("settings.scanCheckDelay must be >= 0"))
	}
	if c.Settings.SinceWindow < 0 {
		errs = append(errs, errors.New("settings.sinceWindow must be >= 0"))
	}

	if c.AI.Enabled {
		req(c.AI.APIKey, "ai.apiKey")
	}
	return errors.Join(errs...)
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN in lib/pq URL form.
func (c *Config) PostgresDSN() string {
	mode := c.Database.SSLMode
	if mode == "" {
		mode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + mode,
	}
	return u.String()
}

// DefaultYAML is the starter file written by init-config.
func DefaultYAML() []byte {
	return []byte(`acunetix:
  url: https://acunetix.example.com:3443/api/v1
  apiKey: CHANGE_ME
  reportTemplateId: 11111111-1111-1111-1111-111111111111
  verifySSL: true
  timeout: 30s
  maxRetries: 3
  backoffFactor: 0.3

email:
  username: reports@example.com
  password: CHANGE_ME
  from: reports@example.com
  recipients:
    - security@example.com
  smtpServer: smtp.example.com
  smtpPort: 587
  useTLS: true

registry:
  driver: file
  path: processed_scans.json
  table: processed_scans
  objectKey: registry/processed_scans.json

settings:
  reportMaxRetries: 10
  reportRetryDelay: 10s
  scanCheckDelay: 1h
  requestTimeout: 30s
  sinceWindow: 0s
  cleanupReports: false

server:
  port: 8080
  apiKeys: []
  allowedOrigins: []
  rateLimit: 1
  rateBurst: 5

ai:
  enabled: false
  apiKey: ""
  model: gpt-4o-mini

log:
  level: info
  file: ""
  json: false
`)
}
