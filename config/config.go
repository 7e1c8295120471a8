// BTRA: Blood Transfusion Analysis Tool
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/btra/blob/master/LICENSE.txt>.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the defaults of the btra command-line flags. Each default can be overridden by an environment
// variable, which in turn is overridden by the corresponding flag.
type Config struct {
	Alpha       float64  `env:"BTRA_ALPHA" default:"0.05"`         //significance level
	DPI         int      `env:"BTRA_DPI" default:"300"`            //resolution of raster figures
	CutoffHours float64  `env:"BTRA_CUTOFF_HOURS" default:"6"`     //hours separating early from late transfusion
	NrOfThreads int      `env:"BTRA_NR_OF_THREADS" default:"0"`    //0 means all available processors
	Formats     []string `env:"BTRA_FORMATS" default:"pdf,png,svg"` //file formats of the flow diagram
	DotPath     string   `env:"BTRA_DOT_PATH"`                     //Graphviz dot binary, empty to skip rendering
	Simulate    int      `env:"BTRA_SIMULATE" default:"0"`         //Monte Carlo iterations for sparse tables
}

// SupportedFormats lists the figure formats that can be written.
var SupportedFormats = []string{"pdf", "png", "svg"}

// Load reads the configuration from the environment. If envFile is not empty, variables are first loaded from that
// file without overwriting variables that are already set. A missing default .env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config load: %w", err)
		}
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	cfg := &Config{}
	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// loadStruct populates struct fields from environment variables or their defaults.
func loadStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}
		value := os.Getenv(envName)
		if value == "" {
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}
		if err := setField(v.Field(i), value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}
	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int:
		i, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		field.SetInt(int64(i))
	case reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		field.Set(reflect.ValueOf(SplitList(value)))
	default:
		return fmt.Errorf("unsupported field type %v", field.Kind())
	}
	return nil
}

// SplitList splits a comma-separated list, dropping empty entries.
func SplitList(s string) []string {
	result := []string{}
	for _, x := range strings.Split(s, ",") {
		if x = strings.TrimSpace(x); x != "" {
			result = append(result, x)
		}
	}
	return result
}

// Validate checks that all values are in range.
func (cfg *Config) Validate() error {
	if !(cfg.Alpha > 0 && cfg.Alpha < 1) {
		return fmt.Errorf("alpha must be in (0, 1), got %v", cfg.Alpha)
	}
	if cfg.DPI <= 0 {
		return fmt.Errorf("dpi must be positive, got %v", cfg.DPI)
	}
	if !(cfg.CutoffHours > 0) {
		return fmt.Errorf("cutoff must be positive, got %v", cfg.CutoffHours)
	}
	if cfg.NrOfThreads < 0 {
		return fmt.Errorf("number of threads cannot be negative, got %v", cfg.NrOfThreads)
	}
	if cfg.Simulate < 0 {
		return fmt.Errorf("number of simulations cannot be negative, got %v", cfg.Simulate)
	}
	if len(cfg.Formats) == 0 {
		return errors.New("no figure formats")
	}
	for _, f := range cfg.Formats {
		if !supported(f) {
			return fmt.Errorf("unsupported figure format %q, want one of %v", f, SupportedFormats)
		}
	}
	return nil
}

func supported(format string) bool {
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}
