// Package loader turns external datasets into cinefusion records. The
// engine itself never reads files or databases; loaders do that before the
// build.
package loader

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-reflect"
	"github.com/oarkflow/json"
	"github.com/oarkflow/squealx"
	"github.com/oarkflow/squealx/connection"
	"go.uber.org/zap"

	"github.com/oarkflow/cinefusion"
	"github.com/oarkflow/cinefusion/utils"
)

var ErrUnsupportedFormat = errors.New("loader: unsupported format")

type options struct {
	log         *zap.SugaredLogger
	skipInvalid bool
}

type Option func(*options)

// WithSkipInvalid logs and drops rows that cannot be mapped instead of
// failing the whole load.
func WithSkipInvalid(skip bool) Option {
	return func(o *options) {
		o.skipInvalid = skip
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// collector maps rows to records and applies the skip policy.
type collector struct {
	o       *options
	records []cinefusion.Record
	skipped int
}

func (c *collector) add(row map[string]any) error {
	seq := len(c.records) + c.skipped
	rec, err := FromMap(row, seq)
	if err != nil {
		if !c.o.skipInvalid {
			return fmt.Errorf("row %d: %w", seq, err)
		}
		c.skipped++
		c.o.log.Warnw("skipping invalid row", "row", seq, "error", err)
		return nil
	}
	c.records = append(c.records, rec)
	return nil
}

func (c *collector) done(source string) []cinefusion.Record {
	c.o.log.Infow("dataset loaded", "source", source, "records", len(c.records), "skipped", c.skipped)
	return c.records
}

// File loads path, choosing the decoder from format or, when format is
// empty, from the file extension.
func File(ctx context.Context, path, format string, opts ...Option) ([]cinefusion.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	r := bufio.NewReader(f)
	switch format {
	case "json":
		return FromJSON(ctx, r, opts...)
	case "csv":
		return FromCSV(ctx, r, opts...)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// FromJSON streams a JSON array of objects.
func FromJSON(ctx context.Context, r io.Reader, opts ...Option) ([]cinefusion.Record, error) {
	c := &collector{o: newOptions(opts)}
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	tok, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON token: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("invalid JSON array, expected '[' got %v", tok)
	}
	for decoder.More() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var row map[string]any
		if err := decoder.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
		if err := c.add(row); err != nil {
			return nil, err
		}
	}
	return c.done("json"), nil
}

// FromCSV reads a CSV file with a header row.
func FromCSV(ctx context.Context, r io.Reader, opts ...Option) ([]cinefusion.Record, error) {
	c := &collector{o: newOptions(opts)}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, v := range fields {
			if i < len(columns) && v != "" {
				row[columns[i]] = v
			}
		}
		if err := c.add(row); err != nil {
			return nil, err
		}
	}
	return c.done("csv"), nil
}

// DBConfig describes a database to load from.
type DBConfig struct {
	Driver   string
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// Connect opens the database described by cfg.
func Connect(cfg DBConfig) (*squealx.DB, error) {
	db, _, err := connection.FromConfig(squealx.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Driver:   cfg.Driver,
		Username: cfg.Username,
		Password: cfg.Password,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// FromDatabase streams the rows returned by query.
func FromDatabase(ctx context.Context, db *squealx.DB, query string, opts ...Option) ([]cinefusion.Record, error) {
	if db == nil {
		return nil, fmt.Errorf("no database provided")
	}
	if query == "" {
		return nil, fmt.Errorf("no query provided")
	}
	c := &collector{o: newOptions(opts)}
	err := squealx.SelectEach(db, func(row map[string]any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return c.add(row)
	}, query)
	if err != nil {
		return nil, err
	}
	return c.done("database"), nil
}

// FromStructs maps any slice of structs or maps through its JSON form.
func FromStructs(ctx context.Context, slice any, opts ...Option) ([]cinefusion.Record, error) {
	v := reflect.ValueOf(slice)
	if v.Kind() != reflect.Slice {
		return nil, fmt.Errorf("loader: expected a slice, got %T", slice)
	}
	c := &collector{o: newOptions(opts)}
	for i := 0; i < v.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := json.Marshal(v.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("error marshalling element %d: %w", i, err)
		}
		var row map[string]any
		if err := json.Unmarshal(b, &row); err != nil {
			return nil, fmt.Errorf("error unmarshalling element %d: %w", i, err)
		}
		if err := c.add(row); err != nil {
			return nil, err
		}
	}
	return c.done("structs"), nil
}

// FromMap maps one loosely typed row onto a Record. Both the plain field
// names (title, year, rating, ...) and the IMDB 5000 export columns
// (movie_title, title_year, imdb_score, ...) are understood. seq becomes the
// id when the row has none.
func FromMap(row map[string]any, seq int) (cinefusion.Record, error) {
	var r cinefusion.Record
	id := seq
	if raw, ok := lookup(row, "id", "movie_id"); ok {
		v, ok := utils.ToInt(raw)
		if !ok {
			return r, fmt.Errorf("invalid id %v", raw)
		}
		id = v
	}
	if id < 0 || id > math.MaxUint32 {
		return r, fmt.Errorf("id %d out of range", id)
	}
	r.ID = uint32(id)

	if raw, ok := lookup(row, "title", "movie_title", "name"); ok {
		r.Title = strings.TrimSpace(utils.ToString(raw))
	}
	if r.Title == "" {
		return r, fmt.Errorf("missing title")
	}
	var err error
	if r.Year, err = intField(row, "year", "title_year"); err != nil {
		return r, err
	}
	if r.Runtime, err = intField(row, "runtime", "duration"); err != nil {
		return r, err
	}
	if r.Votes, err = intField(row, "votes", "num_voted_users"); err != nil {
		return r, err
	}
	if raw, ok := lookup(row, "rating", "imdb_score", "vote_average"); ok {
		v, ok := utils.ToFloat(raw)
		if !ok {
			return r, fmt.Errorf("invalid rating %v", raw)
		}
		r.Rating = v
	}
	if raw, ok := lookup(row, "director", "director_name"); ok {
		r.Director = strings.TrimSpace(utils.ToString(raw))
	}
	if raw, ok := lookup(row, "genres", "genre"); ok {
		r.Genres = list(raw)
	}
	if raw, ok := lookup(row, "cast", "actors"); ok {
		r.Cast = list(raw)
	} else {
		for _, col := range []string{"actor_1_name", "actor_2_name", "actor_3_name"} {
			if raw, ok := lookup(row, col); ok {
				if name := strings.TrimSpace(utils.ToString(raw)); name != "" {
					r.Cast = append(r.Cast, name)
				}
			}
		}
	}
	if raw, ok := lookup(row, "plot", "overview"); ok {
		r.Plot = strings.TrimSpace(utils.ToString(raw))
	} else if raw, ok := lookup(row, "plot_keywords"); ok {
		r.Plot = strings.Join(list(raw), ", ")
	}
	return r, nil
}

func lookup(row map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func intField(row map[string]any, keys ...string) (int, error) {
	raw, ok := lookup(row, keys...)
	if !ok {
		return 0, nil
	}
	v, ok := utils.ToInt(raw)
	if !ok {
		return 0, fmt.Errorf("invalid %s %v", keys[0], raw)
	}
	return v, nil
}

func list(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(utils.ToString(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return utils.SplitList(utils.ToString(raw), "|")
}
