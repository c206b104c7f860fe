package trip

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DestinationProfile is a YAML-declared set of geo estimates for a destination.
type DestinationProfile struct {
	Name     string      `yaml:"name" json:"name"`
	Code     string      `yaml:"code" json:"code"`
	Prefixes []string    `yaml:"prefixes,omitempty" json:"prefixes,omitempty"`
	Geo      GeoDefaults `yaml:"geo" json:"geo"`
}

// LoadProfile loads profile_<code>.yaml from profilesDir.
func LoadProfile(profilesDir, code string) (*DestinationProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))
	return loadProfileFile(path, code)
}

// LoadAllProfiles loads every profile_*.yaml file in profilesDir, sorted by code.
func LoadAllProfiles(profilesDir string) ([]*DestinationProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}
	profiles := make([]*DestinationProfile, 0, len(matches))
	for _, path := range matches {
		base := filepath.Base(path)
		code := strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		p, err := loadProfileFile(path, code)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Code < profiles[j].Code })
	return profiles, nil
}

func loadProfileFile(path, code string) (*DestinationProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}
	var profile DestinationProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}
	if profile.Code == "" {
		profile.Code = code
	}
	profile.Code = NormalizeDestination(profile.Code)
	if len(profile.Prefixes) == 0 {
		profile.Prefixes = []string{profile.Code}
	}
	for i, p := range profile.Prefixes {
		profile.Prefixes[i] = NormalizeDestination(p)
	}
	return &profile, nil
}

// ProfileEnricher adapts a DestinationProfile to the GeoEnricher interface.
type ProfileEnricher struct {
	Profile *DestinationProfile
}

func (e ProfileEnricher) Name() string { return "profile:" + e.Profile.Code }

func (e ProfileEnricher) Matches(destinationID string) bool {
	id := NormalizeDestination(destinationID)
	for _, p := range e.Profile.Prefixes {
		if id == p || strings.HasPrefix(id, p+"-") {
			return true
		}
	}
	return false
}

func (e ProfileEnricher) Enrich(c Context) Context {
	out := c.Clone()
	out.Geo = e.Profile.Geo.Apply(out.Geo)
	return out
}

// ProfileEnrichers wraps every loaded profile.
func ProfileEnrichers(profiles []*DestinationProfile) []GeoEnricher {
	out := make([]GeoEnricher, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, ProfileEnricher{Profile: p})
	}
	return out
}
