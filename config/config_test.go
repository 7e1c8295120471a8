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
	"os"
	"path/filepath"
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func clearEnv(t *testing.T) {
	for _, name := range []string{"BTRA_ALPHA", "BTRA_DPI", "BTRA_CUTOFF_HOURS", "BTRA_NR_OF_THREADS",
		"BTRA_FORMATS", "BTRA_DOT_PATH", "BTRA_SIMULATE"} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{Alpha: 0.05, DPI: 300, CutoffHours: 6, Formats: []string{"pdf", "png", "svg"}}
	if diff := pretty.Compare(cfg, want); diff != "" {
		t.Errorf("defaults: %s", diff)
	}
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("BTRA_ALPHA", "0.01")
	t.Setenv("BTRA_FORMATS", "png, svg")
	t.Setenv("BTRA_SIMULATE", "2000")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Alpha != 0.01 || cfg.Simulate != 2000 {
		t.Errorf("got %+v", cfg)
	}
	if diff := pretty.Compare(cfg.Formats, []string{"png", "svg"}); diff != "" {
		t.Errorf("formats: %s", diff)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("BTRA_DPI")
	os.Unsetenv("BTRA_CUTOFF_HOURS")
	name := filepath.Join(t.TempDir(), "btra.env")
	if err := os.WriteFile(name, []byte("BTRA_DPI=150\nBTRA_CUTOFF_HOURS=12\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(name)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DPI != 150 || cfg.CutoffHours != 12 {
		t.Errorf("got %+v", cfg)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("an explicit env file that does not exist should fail")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name, value string
	}{
		{"BTRA_ALPHA", "1.5"},
		{"BTRA_ALPHA", "abc"},
		{"BTRA_DPI", "0"},
		{"BTRA_FORMATS", "gif"},
		{"BTRA_NR_OF_THREADS", "-1"},
	}
	for _, test := range tests {
		clearEnv(t)
		t.Setenv(test.name, test.value)
		if _, err := Load(""); err == nil {
			t.Errorf("%v=%v should fail", test.name, test.value)
		}
	}
}

func TestSplitList(t *testing.T) {
	if diff := pretty.Compare(SplitList(" pdf,,png ,"), []string{"pdf", "png"}); diff != "" {
		t.Errorf("SplitList: %s", diff)
	}
}
