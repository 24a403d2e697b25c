package config

import "strings"

const maxSlugLength = 64

// DefaultSwitchName is the name a switch gets when none is configured.
const DefaultSwitchName = "MQTT Switch"

// GenerateSlug creates a URL-safe identifier from a display name.
//
//	GenerateSlug("Kitchen Light #2") // "kitchen-light-2"
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.NewReplacer(" ", "-", "_", "-", "/", "-", ".", "-").Replace(slug)

	var b strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	slug = b.String()

	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")

	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}

	return slug
}

// EffectiveID is the registry id the switch will run under: id when set,
// otherwise a slug of the (defaulted) name.
func (s SwitchConfig) EffectiveID() string {
	if s.ID != "" {
		return s.ID
	}
	name := s.Name
	if name == "" {
		name = DefaultSwitchName
	}
	return GenerateSlug(name)
}
