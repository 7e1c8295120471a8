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

package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Artifact is a file written by a run.
type Artifact struct {
	Kind string `json:"kind"`
	File string `json:"file"`
}

// Manifest records what a run did: its id, the executed command line, when it ran and the files it wrote.
type Manifest struct {
	RunID     string     `json:"runId"`
	Command   string     `json:"command"`
	Started   time.Time  `json:"started"`
	Finished  time.Time  `json:"finished"`
	Artifacts []Artifact `json:"artifacts"`
}

// NewManifest starts the manifest of a run with a fresh run id.
func NewManifest(command string) *Manifest {
	return &Manifest{
		RunID:     uuid.NewString(),
		Command:   command,
		Started:   time.Now(),
		Artifacts: []Artifact{},
	}
}

// Add records artifacts of the given kind.
func (m *Manifest) Add(kind string, files ...string) {
	for _, file := range files {
		m.Artifacts = append(m.Artifacts, Artifact{Kind: kind, File: file})
	}
}

// Files returns the names of all recorded artifacts.
func (m *Manifest) Files() []string {
	files := make([]string, len(m.Artifacts))
	for i, a := range m.Artifacts {
		files[i] = a.File
	}
	return files
}

// Write marks the run as finished and writes the manifest to <path>/<name>.manifest.json. It returns the file name.
func (m *Manifest) Write(path, name string) (string, error) {
	m.Finished = time.Now()
	content, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	file := filepath.Join(path, fmt.Sprintf("%s.manifest.json", name))
	if err := os.WriteFile(file, append(content, '\n'), 0600); err != nil {
		return "", fmt.Errorf("writing %v: %w", file, err)
	}
	return file, nil
}

// ReadManifest reads a manifest written by Write.
func ReadManifest(file string) (*Manifest, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := json.Unmarshal(content, m); err != nil {
		return nil, fmt.Errorf("parsing %v: %w", file, err)
	}
	return m, nil
}
