package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading from YAML and Environment variables.
// Priority: Env Vars > YAML > `default` tags. The result is validated with
// the struct's `validate` tags before it is returned.
type Loader[T any] struct {
	envPrefix  string
	configPath string
	validate   *validator.Validate
}

func NewLoader[T any](envPrefix, configPath string) *Loader[T] {
	return &Loader[T]{
		envPrefix:  envPrefix,
		configPath: configPath,
		validate:   validator.New(),
	}
}

// Path is the YAML file the loader reads, if any.
func (l *Loader[T]) Path() string { return l.configPath }

// Load reads the configuration. A configured but missing YAML file is not an error.
func (l *Loader[T]) Load() (*T, error) {
	// envconfig applies defaults for every unset variable, so it runs twice:
	// once for defaults under the YAML, once for the variables actually set.
	var cfg, fromEnv T
	if err := envconfig.Process(l.envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to process env vars: %w", err)
	}
	fromEnv = cfg

	if l.configPath != "" {
		if err := decodeFile(l.configPath, &cfg); err != nil {
			return nil, err
		}
		overlayEnv(reflect.ValueOf(&cfg).Elem(), reflect.ValueOf(&fromEnv).Elem(), l.envPrefix)
	}

	if err := l.validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

var sectionValidator = validator.New()

// Validate checks v against its `validate` tags. It is for config sections
// marked `validate:"-"` on the parent, whose use depends on other settings.
func Validate(v any) error {
	if err := sectionValidator.Struct(v); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	return nil
}

func decodeFile(path string, dst any) error {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: failed to open %s: %w", path, err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: failed to decode %s: %w", path, err)
	}
	return nil
}

// overlayEnv copies into dst every field of src whose env variable is set.
func overlayEnv(dst, src reflect.Value, prefix string) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("envconfig")
		if f.Type.Kind() == reflect.Struct && tag == "" && f.Type.PkgPath() != "time" {
			overlayEnv(dst.Field(i), src.Field(i), prefix)
			continue
		}
		if tag == "" {
			continue
		}
		if envSet(prefix, tag) {
			dst.Field(i).Set(src.Field(i))
		}
	}
}

func envSet(prefix, key string) bool {
	key = strings.ToUpper(key)
	if _, ok := os.LookupEnv(key); ok {
		return true
	}
	if prefix == "" {
		return false
	}
	_, ok := os.LookupEnv(strings.ToUpper(prefix) + "_" + key)
	return ok
}
