package helper

import (
	"errors"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvOverrider is implemented by configurations that read overrides from the environment.
type EnvOverrider interface {
	ApplyEnv()
}

// LoadConfig fills out from an optional .env file and the YAML file at path.
// ${VAR} references in the YAML are expanded. out should already hold the defaults.
// An empty path skips the YAML step. The result is validated with validate struct tags.
func LoadConfig(path string, out interface{}) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return NewError("load .env", err)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return NewError("read config", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), out); err != nil {
			return NewError("parse config", err)
		}
	}

	if o, ok := out.(EnvOverrider); ok {
		o.ApplyEnv()
	}

	if err := ValidateStruct(out); err != nil {
		return NewError("validate config", err)
	}

	return nil
}

// ValidateStruct runs the validate tags of s.
func ValidateStruct(s interface{}) error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(s)
}
