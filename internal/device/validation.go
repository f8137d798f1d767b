package device

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength   = 100
	maxSlugLength   = 50
	maxPrefixLength = 100
	slugPattern     = `^[a-z0-9]+(?:-[a-z0-9]+)*$`

	// EPICS PV prefixes are colon-separated uppercase-ish segments,
	// e.g. XCS:SB2:VGC:01. Field separators and lowercase are left to
	// the IOC; we only reject obviously broken names.
	prefixPattern = `^[A-Za-z0-9_-]+(?::[A-Za-z0-9._-]+)*$`

	// Size limits for the metadata JSON field to keep rows bounded.
	maxMetadataKeys   = 50
	maxStringValueLen = 1024
	maxNestingDepth   = 10
)

var (
	slugRegex   = regexp.MustCompile(slugPattern)
	prefixRegex = regexp.MustCompile(prefixPattern)
)

// Pre-computed validation set for O(1) lookups.
var validClasses map[Class]struct{}

func init() {
	validClasses = make(map[Class]struct{}, len(AllClasses()))
	for _, c := range AllClasses() {
		validClasses[c] = struct{}{}
	}
}

// ValidateDevice performs comprehensive validation on an inventory row.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	// Empty slug will be generated from the name.
	if d.Slug != "" {
		if err := ValidateSlug(d.Slug); err != nil {
			return err
		}
	}

	if err := ValidatePrefix(d.Prefix); err != nil {
		return err
	}

	if err := ValidateClass(d.Class); err != nil {
		return err
	}

	if strings.TrimSpace(d.Beamline) == "" {
		return fmt.Errorf("%w: beamline is required", ErrInvalidDevice)
	}

	if strings.TrimSpace(d.StateTable) == "" {
		return fmt.Errorf("%w: state table is required", ErrInvalidStateTable)
	}

	if len(d.Metadata) > maxMetadataKeys {
		return fmt.Errorf("%w: metadata exceeds max keys (%d)", ErrInvalidDevice, maxMetadataKeys)
	}
	if err := validateMapSize(d.Metadata, "metadata", 0); err != nil {
		return err
	}

	return nil
}

// validateMapSize recursively checks map values with depth tracking.
func validateMapSize(m map[string]any, fieldName string, depth int) error {
	if depth > maxNestingDepth {
		return fmt.Errorf("%w: %s exceeds maximum nesting depth", ErrInvalidDevice, fieldName)
	}
	for k, v := range m {
		if len(k) > maxStringValueLen {
			return fmt.Errorf("%w: %s key too long", ErrInvalidDevice, fieldName)
		}
		if err := validateValueSize(v, fieldName, depth); err != nil {
			return err
		}
	}
	return nil
}

func validateValueSize(v any, fieldName string, depth int) error {
	switch val := v.(type) {
	case string:
		if len(val) > maxStringValueLen {
			return fmt.Errorf("%w: %s string value too long", ErrInvalidDevice, fieldName)
		}
	case map[string]any:
		if len(val) > maxMetadataKeys {
			return fmt.Errorf("%w: %s nested map too large", ErrInvalidDevice, fieldName)
		}
		return validateMapSize(val, fieldName, depth+1)
	case []any:
		if len(val) > maxMetadataKeys {
			return fmt.Errorf("%w: %s array too large", ErrInvalidDevice, fieldName)
		}
		for _, elem := range val {
			if err := validateValueSize(elem, fieldName, depth+1); err != nil {
				return err
			}
		}
	}
	// Primitives are safe.
	return nil
}

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSlug checks if a slug format is valid.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug cannot be empty", ErrInvalidSlug)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("%w: slug must be lowercase alphanumeric with hyphens", ErrInvalidSlug)
	}
	return nil
}

// ValidatePrefix checks if a PV prefix is valid.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("%w: prefix cannot be empty", ErrInvalidPrefix)
	}
	if len(prefix) > maxPrefixLength {
		return fmt.Errorf("%w: prefix exceeds %d characters", ErrInvalidPrefix, maxPrefixLength)
	}
	if !prefixRegex.MatchString(prefix) {
		return fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	return nil
}

// ValidateClass checks if a device class is valid.
// Uses O(1) map lookup for efficiency.
func ValidateClass(class Class) error {
	if _, ok := validClasses[class]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidClass, class)
}

// GenerateSlug creates a URL-safe slug from a name.
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)

	// Replace separators with hyphens
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")
	slug = strings.ReplaceAll(slug, ":", "-")

	// Remove any characters that aren't alphanumeric or hyphens
	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	// Remove leading/trailing hyphens and collapse multiple hyphens
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		slug = strings.TrimRight(slug, "-")
	}

	return slug
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
