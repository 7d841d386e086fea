package query

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/agentuity/querycache/cache"
	"github.com/agentuity/querycache/params"
	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const (
	templateFile   = "template.sql"
	paramsJSONFile = "params.json"
	paramsYAMLFile = "params.yaml"
	schemaURL      = "https://querycache.agentuity.com/params.schema.json"
)

var (
	// ErrQueryNotFound is returned when no definition exists for a query name.
	ErrQueryNotFound = errors.New("query not found")
	// ErrInvalidDefinition is returned when a params document fails validation.
	ErrInvalidDefinition = errors.New("invalid query definition")
	// ErrInvalidName is returned for query names that are not a single path segment.
	ErrInvalidName = errors.New("invalid query name")
)

//go:embed params.schema.json
var schemaJSON []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func definitionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = errors.Wrap(err, "add params schema")
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-.]*$`)

// Definition is a named SQL template together with its params and cache
// policy.
type Definition struct {
	Name     string
	Template string
	Schema   params.Schema
	// CacheHours is the entry lifetime in hours; -1 keeps entries forever and
	// 0 disables caching.
	CacheHours int
	// RefreshMinutes, when positive, is the age after which a cached result is
	// recomputed.
	RefreshMinutes float64
	OnlyFromCache  bool
	// CacheProvider names the provider kind; empty selects the runner default.
	CacheProvider string
}

// CacheConfig returns the cache policy of the definition.
func (d *Definition) CacheConfig() cache.Config {
	return cache.Config{
		TTLSeconds:    cache.TTLFromHours(d.CacheHours),
		RefreshWindow: time.Duration(d.RefreshMinutes * float64(time.Minute)),
	}
}

// Kind returns the provider kind named by the definition.
func (d *Definition) Kind() (cache.Kind, error) {
	if d.CacheProvider == "" {
		return "", nil
	}
	return cache.ParseKind(d.CacheProvider)
}

// document is the params file as written. Template values and defaults may
// be written as numbers or booleans and are normalized to strings.
type document struct {
	Params []struct {
		Name     string         `json:"name"`
		Replaces string         `json:"replaces"`
		Template map[string]any `json:"template"`
		Default  any            `json:"default"`
	} `json:"params"`
	CacheHours     *int    `json:"cacheHours"`
	RefreshMinutes float64 `json:"refreshMinutes"`
	OnlyFromCache  bool    `json:"onlyFromCache"`
	CacheProvider  string  `json:"cacheProvider"`
}

// LoadDefinition reads the definition of name from dir/name. The params
// document is params.json, or params.yaml when there is no JSON file.
func LoadDefinition(dir, name string) (*Definition, error) {
	if !nameRe.MatchString(name) || name == "." || name == ".." {
		return nil, errors.Wrapf(ErrInvalidName, "%q", name)
	}
	base := filepath.Join(dir, name)
	tmpl, err := os.ReadFile(filepath.Join(base, templateFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(ErrQueryNotFound, "%s", name)
		}
		return nil, errors.Wrapf(err, "read template of %s", name)
	}
	data, err := readParamsDocument(base)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", name)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", name)
	}
	def.Name = name
	def.Template = string(tmpl)
	return def, nil
}

// readParamsDocument returns the params document of a query directory as
// JSON.
func readParamsDocument(base string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(base, paramsJSONFile))
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "read params.json")
	}
	data, err = os.ReadFile(filepath.Join(base, paramsYAMLFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrap(ErrQueryNotFound, "no params.json or params.yaml")
		}
		return nil, errors.Wrap(err, "read params.yaml")
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse params.yaml"), ErrInvalidDefinition)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "convert params.yaml"), ErrInvalidDefinition)
	}
	return out, nil
}

// ParseDefinition validates a JSON params document and decodes it. Name and
// Template of the result are left empty.
func ParseDefinition(data []byte) (*Definition, error) {
	schema, err := definitionSchema()
	if err != nil {
		return nil, err
	}
	var v any
	raw := json.NewDecoder(bytes.NewReader(data))
	raw.UseNumber()
	if err := raw.Decode(&v); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse params document"), ErrInvalidDefinition)
	}
	if err := schema.Validate(v); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "validate params document"), ErrInvalidDefinition)
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode params document"), ErrInvalidDefinition)
	}

	def := &Definition{
		CacheHours:     -1,
		RefreshMinutes: doc.RefreshMinutes,
		OnlyFromCache:  doc.OnlyFromCache,
		CacheProvider:  doc.CacheProvider,
	}
	if doc.CacheHours != nil {
		def.CacheHours = *doc.CacheHours
	}
	for _, p := range doc.Params {
		param := params.Param{Name: p.Name, Replaces: p.Replaces}
		if p.Template != nil {
			param.Template = make(map[string]string, len(p.Template))
			for k, v := range p.Template {
				param.Template[k] = scalarString(v)
			}
		}
		if p.Default != nil {
			d := scalarString(p.Default)
			param.Default = &d
		}
		def.Schema.Params = append(def.Schema.Params, param)
	}
	if err := def.Schema.Validate(); err != nil {
		return nil, errors.Mark(err, ErrInvalidDefinition)
	}
	if _, err := def.Kind(); err != nil {
		return nil, errors.Mark(err, ErrInvalidDefinition)
	}
	return def, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	b, _ := json.Marshal(v)
	return string(b)
}
