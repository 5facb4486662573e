package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	reExport = regexp.MustCompile(`^\s*export\s+([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*)\s*$`)
	reAssign = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*)\s*$`)
)

// LoadEnvFile sets the variables of a shell-style env file that are not
// already present in the environment. Lines look like KEY=value or
// export KEY=value; values may be single or double quoted. A missing file
// is not an error.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening env file: %w", err)
	}
	defer f.Close()

	scan := bufio.NewScanner(f)
	for scan.Scan() {
		key, val, ok := parseEnvLine(scan.Text())
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
	}
	if err := scan.Err(); err != nil {
		return fmt.Errorf("reading env file: %w", err)
	}
	return nil
}

func parseEnvLine(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	m := reExport.FindStringSubmatch(line)
	if m == nil {
		m = reAssign.FindStringSubmatch(line)
	}
	if m == nil {
		return "", "", false
	}

	key, val = m[1], strings.TrimSpace(m[2])
	switch {
	case len(val) >= 2 && strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`):
		val = val[1 : len(val)-1]
		val = strings.ReplaceAll(val, `\"`, `"`)
		val = strings.ReplaceAll(val, `\\`, `\`)
	case len(val) >= 2 && strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'"):
		val = val[1 : len(val)-1]
	}
	return key, val, true
}
