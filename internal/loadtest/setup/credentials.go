package setup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/wesleyorama2/stampede/internal/loadtest/config"
)

// Identity is one entry of the credential source.
type Identity struct {
	Name   string
	Secret string
}

// ParseCredentials reads "identity<delim>secret" lines from r in order.
//
// Blank lines and lines starting with # are ignored. Lines without the
// delimiter or with an empty identity are skipped and logged; the returned
// count says how many.
func ParseCredentials(r io.Reader, delim string, logger log.FieldLogger) ([]Identity, int, error) {
	if delim == "" {
		delim = config.DefaultDelimiter
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	var (
		identities []Identity
		skipped    int
		lineNo     int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, secret, ok := strings.Cut(line, delim)
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			skipped++
			logger.WithField("line", lineNo).Warn("skipping malformed credential line")
			continue
		}

		identities = append(identities, Identity{Name: name, Secret: strings.TrimSpace(secret)})
	}
	if err := scanner.Err(); err != nil {
		return identities, skipped, fmt.Errorf("failed to read credentials: %w", err)
	}

	return identities, skipped, nil
}

// LoadCredentials reads the configured file, then the inline lines.
func LoadCredentials(c *config.CredentialsConfig, logger log.FieldLogger) ([]Identity, error) {
	if c == nil {
		return nil, nil
	}

	var identities []Identity

	if c.File != "" {
		f, err := os.Open(c.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential file: %w", err)
		}
		defer f.Close()

		ids, _, err := ParseCredentials(f, c.Delimiter, logger)
		if err != nil {
			return nil, err
		}
		identities = append(identities, ids...)
	}

	if len(c.Inline) > 0 {
		ids, _, err := ParseCredentials(strings.NewReader(strings.Join(c.Inline, "\n")), c.Delimiter, logger)
		if err != nil {
			return nil, err
		}
		identities = append(identities, ids...)
	}

	return identities, nil
}
