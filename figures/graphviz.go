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

package figures

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// RenderDot runs the Graphviz dot binary on a DOT file. The output format follows the extension of out, e.g. pdf.
func RenderDot(dotPath, dotFile, out string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	format := strings.TrimPrefix(filepath.Ext(out), ".")
	if format == "" {
		return fmt.Errorf("no output format in %v", out)
	}
	cmd := exec.Command(dotPath, "-T"+format, dotFile, "-o", out)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%v %v: %w: %s", dotPath, dotFile, err, strings.TrimSpace(stderr.String()))
	}
	logger.Debug("Rendered flow graph",
		zap.String("dot", dotPath),
		zap.String("file", out),
		zap.String("output", stdout.String()),
		zap.String("errors", stderr.String()))
	return nil
}
