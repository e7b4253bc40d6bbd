package testutil

import (
	"bufio"
	"io"
	"strings"

	"github.com/sorintlab/errors"
)

// ParseEnvs parses KEY=value lines, including multiline values in heredoc
// form (KEY<<DELIM ... DELIM) as written by the pipeline outputs adapter.
func ParseEnvs(r io.Reader) (map[string]string, error) {
	envs := map[string]string{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		if name, delim, ok := strings.Cut(line, "<<"); ok && !strings.Contains(name, "=") {
			value, err := scanHeredoc(scanner, delim)
			if err != nil {
				return nil, errors.Wrapf(err, "reading value of %s", name)
			}
			envs[name] = value
			continue
		}

		name, value, ok := strings.Cut(strings.TrimLeft(line, " \t"), "=")
		if !ok || name == "" {
			return nil, errors.Errorf("invalid environment variable definition: %s", line)
		}
		envs[name] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return envs, nil
}

func scanHeredoc(scanner *bufio.Scanner, delim string) (string, error) {
	lines := []string{}
	for scanner.Scan() {
		l := scanner.Text()
		if l == delim {
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, l)
	}

	return "", errors.Errorf("missing closing delimiter %q", delim)
}
