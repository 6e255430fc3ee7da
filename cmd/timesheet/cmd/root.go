package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ogurasousui/timesheet-sync/internal/core/timesheet"
	"github.com/ogurasousui/timesheet-sync/internal/platform/bootstrap"
	"github.com/ogurasousui/timesheet-sync/internal/platform/config"
	"github.com/ogurasousui/timesheet-sync/internal/platform/logger"
)

const (
	envPrefix       = "TIMESHEET"
	defaultLogLevel = "warn"
	dateLayout      = "2006-01-02"
)

// session はコマンド実行中に使うユースケースです。
type session struct {
	svc   timesheet.UseCase
	loc   *time.Location
	close func()
}

type sessionFactory func(ctx context.Context, cfg *config.Config, log *slog.Logger) (*session, error)

func buildSession(ctx context.Context, cfg *config.Config, log *slog.Logger) (*session, error) {
	app, err := bootstrap.Build(ctx, cfg, nil, log)
	if err != nil {
		return nil, err
	}
	return &session{svc: app.Service, loc: cfg.Timesheet.Location, close: app.Close}, nil
}

type rootOptions struct {
	v       *viper.Viper
	factory sessionFactory
	current *session
}

// Execute はルートコマンドを実行します。
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand は timesheet コマンドを構築します。
func NewRootCommand() *cobra.Command {
	return newRootCommand(buildSession)
}

func newRootCommand(factory sessionFactory) *cobra.Command {
	opts := &rootOptions{v: viper.New(), factory: factory}

	root := &cobra.Command{
		Use:   "timesheet",
		Short: "Record field work time against shared CSV tables",
		Long: `timesheet records employee work sessions into three CSV tables
(employees, task types, tasks) kept in a shared versioned store.

Every write re-reads the remote table, merges the change row by row and
writes it back with the version it read, so concurrent users never
overwrite each other's rows.

Configuration comes from a YAML file (--config or TIMESHEET_CONFIG) and
can be overridden with flags or TIMESHEET_* environment variables:
  TIMESHEET_BACKEND      github, postgres, sqlite or memory
  TIMESHEET_REPO         owner/name of the GitHub repository
  TIMESHEET_BRANCH       branch holding the CSV files
  TIMESHEET_SQLITE_PATH  SQLite file for the sqlite backend
  TIMESHEET_TIMEZONE     IANA zone used for dates
  GITHUB_TOKEN           token for the github backend`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (YAML)")
	flags.String("backend", "", "store backend: github, postgres, sqlite, memory")
	flags.String("repo", "", "GitHub repository (owner/name)")
	flags.String("branch", "", "GitHub branch")
	flags.String("sqlite-path", "", "SQLite database file")
	flags.String("timezone", "", "IANA timezone for dates")
	flags.String("log-level", "", "log level: debug, info, warn, error (default warn)")

	for _, name := range []string{"config", "backend", "repo", "branch", "sqlite-path", "timezone", "log-level"} {
		_ = opts.v.BindPFlag(name, flags.Lookup(name))
	}
	opts.v.SetEnvPrefix(envPrefix)
	opts.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	opts.v.AutomaticEnv()

	root.AddCommand(
		newEmployeesCommand(opts),
		newTaskTypesCommand(opts),
		newTasksCommand(opts),
		newCustomersCommand(opts),
		newReportCommand(opts),
		newCheckCommand(opts),
		newSyncCommand(opts),
	)
	return root
}

// runE はストアを開いてから fn を実行し、終了後に閉じます。
func (o *rootOptions) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := o.open(cmd); err != nil {
			return err
		}
		defer o.closeSession()
		return fn(cmd, args)
	}
}

func (o *rootOptions) open(cmd *cobra.Command) error {
	cfg, err := config.Load(o.v.GetString("config"), o.override)
	if err != nil {
		return err
	}

	log := logger.New(config.LogConfig{Level: cfg.Log.Level, Format: "text"}, cmd.ErrOrStderr())
	s, err := o.factory(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	o.current = s
	return nil
}

func (o *rootOptions) override(c *config.Config) {
	if v := o.v.GetString("backend"); v != "" {
		c.Store.Backend = v
	}
	if v := o.v.GetString("repo"); v != "" {
		c.Store.GitHub.Repo = v
	}
	if v := o.v.GetString("branch"); v != "" {
		c.Store.GitHub.Branch = v
	}
	if v := o.v.GetString("sqlite-path"); v != "" {
		c.Store.SQLite.Path = v
	}
	if v := o.v.GetString("timezone"); v != "" {
		c.Timesheet.Timezone = v
	}
	if o.v.IsSet("log-level") {
		c.Log.Level = o.v.GetString("log-level")
	} else if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

func (o *rootOptions) closeSession() {
	if o.current != nil && o.current.close != nil {
		o.current.close()
	}
	o.current = nil
}

func (o *rootOptions) svc() timesheet.UseCase {
	return o.current.svc
}

func (o *rootOptions) parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	loc := o.current.loc
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return &t, nil
}
