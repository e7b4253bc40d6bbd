// Copyright 2025 Sorint.lab
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package pipeline serializes detection results into the key/value side
// channel the invoking CI pipeline reads. The export format is the whole
// coupling surface with the pipeline: plain KEY=value lines, with multiline
// values in heredoc form.
package pipeline

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/huandu/xstrings"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/services/warden/types"
)

const (
	OutputActiveLocksFound = "ACTIVE_LOCKS_FOUND"
	OutputStaleLocksFound  = "STALE_LOCKS_FOUND"
	OutputLockCount        = "LOCK_COUNT"
	OutputLockIDs          = "LOCK_IDS"
	OutputLockDetails      = "LOCK_DETAILS"
)

const outputDelimiter = "LOCKWARDEN_EOF"

var defaultDetailsTemplate = template.Must(template.New("lockdetails").Funcs(sprig.TxtFuncMap()).Parse(`
{{- range . }}
- key: {{ .Key }}
  classification: {{ .Classification }} ({{ .Reason }})
{{- if .Record }}
  token: {{ .Record.ID | default "unknown" }}
  operation: {{ .Record.Operation | default "unknown" }}
  who: {{ .Record.Who | default "unknown" }}
{{- if .AgeKnown }}
  created: {{ dateInZone "2006-01-02 15:04:05 MST" .Record.Created "UTC" }}
  age: {{ .Age }}
{{- end }}
{{- end }}
{{- if .Malformed }}
  payload: {{ .Raw | toString | trunc 200 }}
{{- end }}
{{- end }}
`))

// RenderDetails renders the human-readable lock summary shown to an
// approver. Keys without a lock aren't listed. An empty tmplText uses the
// builtin template, anything else is parsed with the sprig function map and
// executed against the lock states.
func RenderDetails(res *types.DetectionResult, tmplText string) (string, error) {
	tmpl := defaultDetailsTemplate
	if tmplText != "" {
		var err error
		tmpl, err = template.New("lockdetails").Funcs(sprig.TxtFuncMap()).Parse(tmplText)
		if err != nil {
			return "", errors.Wrapf(err, "failed to parse details template")
		}
	}

	locks := make([]*types.LockState, 0, len(res.Locks))
	for _, state := range res.Locks {
		if state.Classification == types.ClassificationNone {
			continue
		}
		locks = append(locks, state)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, locks); err != nil {
		return "", errors.WithStack(err)
	}

	return strings.TrimSpace(xstrings.Squeeze(sb.String(), "\n")), nil
}

// WriteOutputs writes the detection result in the format read by the
// invoking pipeline.
func WriteOutputs(w io.Writer, res *types.DetectionResult, tmplText string) error {
	details, err := RenderDetails(res, tmplText)
	if err != nil {
		return err
	}

	outputs := []struct{ name, value string }{
		{OutputActiveLocksFound, strconv.FormatBool(res.ActiveLocksFound)},
		{OutputStaleLocksFound, strconv.FormatBool(res.StaleLocksFound)},
		{OutputLockCount, strconv.Itoa(res.LockCount)},
		{OutputLockIDs, strings.Join(res.PendingTokens, ",")},
		{OutputLockDetails, details},
	}

	for _, o := range outputs {
		if err := writeOutput(w, o.name, o.value); err != nil {
			return err
		}
	}

	return nil
}

// AppendOutputsFile appends the outputs to the file at path, creating it
// when missing. CI systems share one outputs file across the steps of a job,
// so the file is never truncated.
func AppendOutputsFile(path string, res *types.DetectionResult, tmplText string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := WriteOutputs(f, res, tmplText); err != nil {
		f.Close()
		return err
	}

	return errors.WithStack(f.Close())
}

func writeOutput(w io.Writer, name, value string) error {
	var err error
	if strings.Contains(value, "\n") {
		delim := outputDelimiter
		for strings.Contains(value, delim) {
			delim += "_"
		}
		_, err = fmt.Fprintf(w, "%s<<%s\n%s\n%s\n", name, delim, value, delim)
	} else {
		_, err = fmt.Fprintf(w, "%s=%s\n", name, value)
	}

	return errors.WithStack(err)
}
