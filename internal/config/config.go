// Package config decodes the optional .git-entropy.toml repository
// config file that supplies defaults for flags a long-lived clone would
// otherwise need to repeat on every invocation.
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/wabain/git-entropy/internal/errs"
)

// FileName is the config file this tool looks for at the root of the
// working tree.
const FileName = ".git-entropy.toml"

// Config holds the subset of flags that may be defaulted from a
// repository's config file. Explicit CLI flags always take precedence
// over whatever is loaded here. Root is a baseline commit substituting
// for the positional upstream argument, not the boolean --root flag.
type Config struct {
	Root     string `toml:"root"`
	NoUpdate bool   `toml:"no_update"`
	QueueCap int    `toml:"queue_capacity"`
}

// Load reads FileName from dir. A missing file is not an error; it
// returns a zero Config so callers can apply it unconditionally. A
// present-but-malformed file is a *errs.Fatal naming the file and the
// underlying decode error.
func Load(dir string) (*Config, error) {
	path := dir + string(os.PathSeparator) + FileName

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, errs.Wrap(err, "stat %s", path)
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, errs.Wrap(err, "decode %s", path)
	}
	return &cfg, nil
}
