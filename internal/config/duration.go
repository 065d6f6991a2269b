package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ParseDuration parses a non-negative Go duration string; blank means 0.
// path names the field in errors, e.g. "runner.timeout".
func ParseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// Durations parses a batch of fields and remembers every failure, so a
// mapping function can read all its fields and check Err once.
type Durations struct {
	errs []error
}

// Get returns the parsed value, or 0 after recording the error.
func (d *Durations) Get(path, raw string) time.Duration {
	v, err := ParseDuration(path, raw)
	if err != nil {
		d.errs = append(d.errs, err)
	}
	return v
}

// Or is Get with def substituted for blank or zero values.
func (d *Durations) Or(path, raw string, def time.Duration) time.Duration {
	if v := d.Get(path, raw); v > 0 {
		return v
	}
	return def
}

func (d *Durations) Err() error { return errors.Join(d.errs...) }
