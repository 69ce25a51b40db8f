package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/caminte/internal/adapter"
	_ "github.com/roach88/caminte/internal/adapter/memory"
	_ "github.com/roach88/caminte/internal/adapter/mongo"
	_ "github.com/roach88/caminte/internal/adapter/postgres"
	_ "github.com/roach88/caminte/internal/adapter/sqlite"
	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/conn"
	"github.com/roach88/caminte/internal/entity"
	"github.com/roach88/caminte/internal/schema"
)

// Environment variables consulted when the matching flag is empty.
const (
	EnvDriver   = "CAMINTE_DRIVER"
	EnvDatabase = "CAMINTE_DATABASE"
	EnvURL      = "CAMINTE_URL"
	EnvSchema   = "CAMINTE_SCHEMA"
)

// loadEnv reads EnvFile, when it exists, without overriding variables
// already set, then fills empty settings from the environment.
func (o *RootOptions) loadEnv() error {
	if o.EnvFile != "" {
		if err := godotenv.Load(o.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read env file %s: %w", o.EnvFile, err)
		}
	}
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&o.Driver, EnvDriver)
	fill(&o.Database, EnvDatabase)
	fill(&o.URL, EnvURL)
	fill(&o.Schema, EnvSchema)
	if o.Driver == "" {
		o.Driver = "memory"
	}
	return nil
}

func (o *RootOptions) settings(log *slog.Logger) adapter.Settings {
	return adapter.Settings{Database: o.Database, URL: o.URL, Logger: log}
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// loadSchema loads the definitions named by --schema.
func loadSchema(o *RootOptions, f *OutputFormatter) ([]*schema.Definition, error) {
	if o.Schema == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeSchema, "no schema file: pass --schema or set "+EnvSchema, nil)
	}
	defs, err := schema.LoadFile(o.Schema)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeSchema, "cannot load schema "+o.Schema, err)
	}
	f.VerboseLog("loaded %d model(s) from %s", len(defs), o.Schema)
	return defs, nil
}

// session is a connected backend with every schema model defined on it.
type session struct {
	conn   *conn.Connection
	models map[string]*entity.Model
}

// openSession loads the schema, opens the backend and waits for it to
// connect so that no operation is deferred.
func openSession(ctx context.Context, o *RootOptions, cmd *cobra.Command, f *OutputFormatter) (*session, error) {
	defs, err := loadSchema(o, f)
	if err != nil {
		return nil, err
	}
	c, err := conn.Open(o.Driver, o.settings(o.logger(cmd)), conn.WithLogger(o.logger(cmd)), conn.WithManualConnect())
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConnect, "cannot open backend "+o.Driver, err)
	}
	s := &session{conn: c, models: make(map[string]*entity.Model, len(defs))}
	for _, def := range defs {
		m, err := entity.Define(c, def)
		if err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeSchema, "cannot define "+def.Name, err)
		}
		s.models[def.Name] = m
	}
	if err := c.Connect(ctx); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConnect, "cannot connect to "+c.Driver(), err)
	}
	f.VerboseLog("connected to %s", c.Driver())
	return s, nil
}

func (s *session) model(name string, f *OutputFormatter) (*entity.Model, error) {
	m, ok := s.models[name]
	if !ok {
		return nil, f.Fail(ExitCommandError, ErrCodeUnknownModel, fmt.Sprintf("model %q is not in the schema", name), nil)
	}
	return m, nil
}

func (s *session) close(ctx context.Context) {
	_ = s.conn.Disconnect(ctx)
}

// decodeDocument parses a JSON or YAML mapping given on the command line.
func decodeDocument(text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return map[string]any{}, nil
	}
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// parseCondition decodes a condition document. A document without any
// condition key is read as a bare where clause.
func parseCondition(text string, f *OutputFormatter) (condition.Condition, error) {
	doc, err := decodeDocument(text)
	if err != nil {
		return condition.Condition{}, f.Fail(ExitCommandError, ErrCodeCondition, "malformed condition", err)
	}
	if !isConditionDoc(doc) {
		doc = map[string]any{"where": doc}
	}
	cond, err := condition.Parse(doc)
	if err != nil {
		return condition.Condition{}, f.Fail(ExitCommandError, ErrCodeCondition, "invalid condition", err)
	}
	return cond, nil
}

func isConditionDoc(doc map[string]any) bool {
	if len(doc) == 0 {
		return true
	}
	for _, key := range []string{"where", "fields", "order", "skip", "limit"} {
		if _, ok := doc[key]; ok {
			return true
		}
	}
	return false
}

func objects(es []*entity.Entity) []adapter.Record {
	out := make([]adapter.Record, len(es))
	for i, e := range es {
		out[i] = e.ToObject()
	}
	return out
}
