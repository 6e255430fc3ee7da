package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// ストアのバックエンド種別です。
const (
	BackendGitHub   = "github"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

const (
	defaultListenAddr   = ":50051"
	defaultLogLevel     = "info"
	defaultLogFormat    = "json"
	defaultBranch       = "main"
	defaultTimeout      = 10 * time.Second
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 200 * time.Millisecond
	defaultCacheTTL     = 5 * time.Second
	defaultTimezone     = "UTC"

	defaultEmployeesPath = "Data/employees.csv"
	defaultTaskTypesPath = "Data/Tasklist.csv"
	defaultTasksPath     = "Data/tasks.csv"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Tables    TablesConfig    `yaml:"tables"`
	Sync      SyncConfig      `yaml:"sync"`
	Timesheet TimesheetConfig `yaml:"timesheet"`
}

// ServerConfig は gRPC サーバーに関する設定です。MetricsAddr が空の場合 /metrics は公開しません。
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// LogConfig はログ出力の設定です。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig はテーブルファイルの保存先の設定です。
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	GitHub   GitHubConfig   `yaml:"github"`
	Database DatabaseConfig `yaml:"database"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// GitHubConfig は GitHub Contents API に関する設定です。Token が空の場合は GITHUB_TOKEN を使います。
type GitHubConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Repo              string        `yaml:"repo"`
	Branch            string        `yaml:"branch"`
	Token             string        `yaml:"token"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"-"`
	TimeoutRaw        string        `yaml:"timeout"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
}

// SQLiteConfig はローカル SQLite ファイルの設定です。
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// TablesConfig は各テーブルファイルのパスです。legacy_* は旧配置からの取り込み元です。
type TablesConfig struct {
	Employees       string `yaml:"employees"`
	TaskTypes       string `yaml:"task_types"`
	Tasks           string `yaml:"tasks"`
	LegacyEmployees string `yaml:"legacy_employees"`
	LegacyTaskTypes string `yaml:"legacy_task_types"`
	LegacyTasks     string `yaml:"legacy_tasks"`
}

// SyncConfig は書き込みの再試行とキャッシュの設定です。cache_ttl が 0 の場合はキャッシュしません。
type SyncConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryBackoff    time.Duration `yaml:"-"`
	CacheTTL        time.Duration `yaml:"-"`
	RetryBackoffRaw string        `yaml:"retry_backoff"`
	CacheTTLRaw     string        `yaml:"cache_ttl"`
}

// TimesheetConfig はタイムシートの業務設定です。
type TimesheetConfig struct {
	Timezone string         `yaml:"timezone"`
	Location *time.Location `yaml:"-"`
}

// Override は読み込み後、検証前に設定を書き換えます。
type Override func(*Config)

// Load は指定されたパスから設定ファイルを読み込みます。path が空の場合は既定値と overrides のみで構築します。
func Load(path string, overrides ...Override) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	for _, o := range overrides {
		if o != nil {
			o(&cfg)
		}
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}

	if err := c.Log.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Store.validateAndNormalize(); err != nil {
		return err
	}
	c.Tables.normalize()
	if err := c.Sync.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Timesheet.validateAndNormalize(); err != nil {
		return err
	}

	return nil
}

func (l *LogConfig) validateAndNormalize() error {
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is not supported", l.Level)
	}

	l.Format = strings.ToLower(strings.TrimSpace(l.Format))
	if l.Format == "" {
		l.Format = defaultLogFormat
	}
	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("config: log.format %q is not supported", l.Format)
	}
	return nil
}

func (s *StoreConfig) validateAndNormalize() error {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	switch s.Backend {
	case "":
		return fmt.Errorf("config: store.backend must be set")
	case BackendGitHub:
		return s.GitHub.validateAndNormalize()
	case BackendPostgres:
		return s.Database.validateAndNormalize()
	case BackendSQLite:
		if strings.TrimSpace(s.SQLite.Path) == "" {
			return fmt.Errorf("config: store.sqlite.path must be set")
		}
		return nil
	case BackendMemory:
		return nil
	default:
		return fmt.Errorf("config: store.backend %q is not supported", s.Backend)
	}
}

func (g *GitHubConfig) validateAndNormalize() error {
	if strings.TrimSpace(g.Repo) == "" {
		return fmt.Errorf("config: store.github.repo must be set")
	}
	if g.Branch == "" {
		g.Branch = defaultBranch
	}
	if g.Token == "" {
		g.Token = os.Getenv("GITHUB_TOKEN")
	}
	if g.RequestsPerSecond < 0 {
		return fmt.Errorf("config: store.github.requests_per_second must not be negative")
	}

	timeout, err := parseDurationAllowEmpty(g.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: store.github.timeout: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	g.Timeout = timeout
	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: store.database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: store.database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: store.database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: store.database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: store.database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: store.database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: store.database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	return nil
}

func (t *TablesConfig) normalize() {
	if t.Employees == "" {
		t.Employees = defaultEmployeesPath
	}
	if t.TaskTypes == "" {
		t.TaskTypes = defaultTaskTypesPath
	}
	if t.Tasks == "" {
		t.Tasks = defaultTasksPath
	}
}

func (s *SyncConfig) validateAndNormalize() error {
	if s.MaxAttempts < 0 {
		return fmt.Errorf("config: sync.max_attempts must not be negative")
	}
	if s.MaxAttempts == 0 {
		s.MaxAttempts = defaultMaxAttempts
	}

	if s.RetryBackoffRaw == "" {
		s.RetryBackoff = defaultRetryBackoff
	} else {
		backoff, err := time.ParseDuration(s.RetryBackoffRaw)
		if err != nil {
			return fmt.Errorf("config: sync.retry_backoff: %w", err)
		}
		s.RetryBackoff = backoff
	}

	if s.CacheTTLRaw == "" {
		s.CacheTTL = defaultCacheTTL
	} else {
		ttl, err := time.ParseDuration(s.CacheTTLRaw)
		if err != nil {
			return fmt.Errorf("config: sync.cache_ttl: %w", err)
		}
		if ttl < 0 {
			return fmt.Errorf("config: sync.cache_ttl must not be negative")
		}
		s.CacheTTL = ttl
	}
	return nil
}

func (t *TimesheetConfig) validateAndNormalize() error {
	if t.Timezone == "" {
		t.Timezone = defaultTimezone
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return fmt.Errorf("config: timesheet.timezone: %w", err)
	}
	t.Location = loc
	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}
