package selection

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/envagent/envboot/fault"
)

// Profile pins provisioning choices that would otherwise come from the
// selectors. Zero values mean "let the selector decide".
type Profile struct {
	NodeType        string `yaml:"node_type"`
	Image           string `yaml:"image"`
	Network         string `yaml:"network"`
	KeyName         string `yaml:"key_name"`
	DurationMinutes int    `yaml:"duration_minutes"`
	Count           int    `yaml:"count"`
	FloatingIP      *bool  `yaml:"floating_ip"`
}

// LoadProfile reads and validates a profile file. Unknown fields are
// rejected so that typos fail fast instead of silently losing an override.
func LoadProfile(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fault.Wrap(fault.Validation, err, "cannot read profile %s", path)
	}
	return ParseProfile(raw)
}

// ParseProfile decodes profile YAML.
func ParseProfile(raw []byte) (Profile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return Profile{}, fault.Wrap(fault.Validation, err, "invalid profile")
	}

	if p.DurationMinutes != 0 && (p.DurationMinutes < 1 || p.DurationMinutes > 44640) {
		return Profile{}, fault.New(fault.Validation,
			"profile duration_minutes must be between 1 and 44640, got %d", p.DurationMinutes)
	}
	if p.Count < 0 {
		return Profile{}, fault.New(fault.Validation, "profile count cannot be negative")
	}
	return p, nil
}
