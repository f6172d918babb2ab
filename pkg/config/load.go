package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	mu     sync.Mutex
	cache  = make(map[string]any)
	dotenv sync.Once
)

// Load parses environment variables into v. The first call for a given
// type performs the parse; later calls return the cached value, so all
// components observe the same configuration for the lifetime of the
// process.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	// A missing .env file is not an error; containers and CI set real
	// environment variables instead.
	dotenv.Do(func() { _ = godotenv.Load() })

	key := typeName[T]()

	mu.Lock()
	defer mu.Unlock()

	if cached, ok := cache[key]; ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrFailedToParse, fmt.Errorf("type %s: %w", key, err))
	}

	cache[key] = *v
	return nil
}

// MustLoad is Load that panics on failure, for use during startup where a
// missing required variable should prevent the service from running.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(err)
	}
}

func typeName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
