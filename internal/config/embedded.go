package config

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tildaslashalef/notesync/internal/loggy"
)

//go:embed env.sample
var configFS embed.FS

const sampleEnvName = "env.sample"

// EnvSeed carries values written into a fresh .env in place of the sample's
// empty defaults. Empty fields leave the sample line untouched.
type EnvSeed struct {
	OwnerID   string
	ServerURL string
}

func (s EnvSeed) values() map[string]string {
	values := make(map[string]string)
	if s.OwnerID != "" {
		values["NOTESYNC_SYNC_OWNER_ID"] = s.OwnerID
	}
	if s.ServerURL != "" {
		values["NOTESYNC_SERVER_URL"] = s.ServerURL
	}
	return values
}

// WriteEnvFile writes the bundled sample configuration to configDir/.env.
// An existing file is kept unless replace is set, in which case it is copied
// to a dated .bak first. It reports whether the file was written.
func WriteEnvFile(configDir string, seed EnvSeed, replace bool) (bool, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return false, err
	}

	target := filepath.Join(configDir, ".env")
	if _, err := os.Stat(target); err == nil {
		if !replace {
			return false, nil
		}
		if err := backupEnvFile(target, time.Now()); err != nil {
			return false, err
		}
	}

	sample, err := configFS.ReadFile(sampleEnvName)
	if err != nil {
		return false, err
	}

	if err := os.WriteFile(target, seedEnv(sample, seed.values()), 0600); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", target, err)
	}

	loggy.Info("Wrote configuration file", "path", target, "seeded_keys", len(seed.values()))
	return true, nil
}

func backupEnvFile(path string, now time.Time) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read existing file for backup: %w", err)
	}

	backup := fmt.Sprintf("%s.%s.bak", path, now.Format("2006-01-02"))
	if err := os.WriteFile(backup, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}

	loggy.Info("Created backup of existing file", "original", path, "backup", backup)
	return nil
}

// seedEnv fills KEY= lines of the sample, commented or not, with the given
// values and keeps every other line as is
func seedEnv(sample []byte, values map[string]string) []byte {
	if len(values) == 0 {
		return sample
	}

	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(sample))
	for scanner.Scan() {
		line := scanner.Text()
		key, _, found := strings.Cut(strings.TrimPrefix(line, "#"), "=")
		if v, ok := values[key]; found && ok {
			line = key + "=" + v
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}
