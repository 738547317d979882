package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"dungeonload/internal/schedule"
)

//go:embed default_profile.yaml
var defaultProfile []byte

// ProfileFile is the on-disk shape of a load profile.
//
//	stages:
//	  - duration: 30s
//	    target: 50
//	thresholds:
//	  http_req_duration: [p(95)<200]
type ProfileFile struct {
	Stages     []schedule.Stage    `yaml:"stages"`
	VUs        int                 `yaml:"vus"`
	Duration   time.Duration       `yaml:"duration"`
	Thresholds map[string][]string `yaml:"thresholds"`
}

func (f ProfileFile) Profile() schedule.Profile {
	if len(f.Stages) > 0 {
		return schedule.Profile{Stages: f.Stages}
	}
	return schedule.Flat(f.VUs, f.Duration)
}

// DefaultProfile is the built-in ramp to 500 users.
func DefaultProfile() ProfileFile {
	f, err := ParseProfile(defaultProfile)
	if err != nil {
		panic(fmt.Sprintf("embedded default profile: %v", err))
	}
	return f
}

// LoadProfile reads a YAML profile file.
func LoadProfile(path string) (ProfileFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProfileFile{}, fmt.Errorf("read profile: %w", err)
	}
	f, err := ParseProfile(data)
	if err != nil {
		return ProfileFile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return f, nil
}

// ParseProfile decodes a profile strictly: unknown keys are errors.
func ParseProfile(data []byte) (ProfileFile, error) {
	var f ProfileFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return ProfileFile{}, fmt.Errorf("decode profile: %w", err)
	}
	if len(f.Stages) > 0 && (f.VUs != 0 || f.Duration != 0) {
		return ProfileFile{}, errors.New("profile sets both stages and a flat vus/duration")
	}
	return f, nil
}
