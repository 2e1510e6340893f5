// Package manifest parses the aopkg.toml document found in package archives.
package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
)

// MaxRepositoryLength bounds the optional "owner/repo" coordinate. The
// coordinate participates in webhook ownership lookups, so it is validated
// here rather than at display time.
const MaxRepositoryLength = 40

var (
	// ErrUnknownBotType is returned for a bot_type outside the supported runtimes.
	ErrUnknownBotType = errors.New("unknown bot type")

	// ErrInvalidRepository is returned for a github coordinate that is not
	// exactly "owner/repo" or exceeds MaxRepositoryLength.
	ErrInvalidRepository = errors.New("invalid repository coordinate")
)

// BotType identifies one of the supported chat-bot runtimes.
type BotType string

// Supported runtimes. Matching is case-sensitive; "Bebot" is the one
// accepted alternate spelling and normalizes to BeBot.
const (
	BotTypeNadybot BotType = "Nadybot"
	BotTypeTyrbot  BotType = "Tyrbot"
	BotTypeBudabot BotType = "Budabot"
	BotTypeBeBot   BotType = "BeBot"
)

// ParseBotType maps a manifest string to a BotType.
func ParseBotType(s string) (BotType, error) {
	switch s {
	case "Nadybot":
		return BotTypeNadybot, nil
	case "Tyrbot":
		return BotTypeTyrbot, nil
	case "Budabot":
		return BotTypeBudabot, nil
	case "BeBot", "Bebot":
		return BotTypeBeBot, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBotType, s)
	}
}

// String returns the canonical spelling of the bot type.
func (b BotType) String() string {
	return string(b)
}

// Manifest is the typed form of an aopkg.toml document.
type Manifest struct {
	Name        string
	Description string
	Version     *semver.Version
	Author      string
	BotType     BotType
	BotVersion  *semver.Constraints
	Repository  string // optional "owner/repo" coordinate
}

// rawManifest mirrors the TOML document before field validation.
type rawManifest struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Version     string `toml:"version"`
	Author      string `toml:"author"`
	BotType     string `toml:"bot_type"`
	BotVersion  string `toml:"bot_version"`
	GitHub      string `toml:"github"`
}

// Parse deserializes and validates a manifest document. All fields except
// github are required. The version must be a full semantic version and
// bot_version a semantic-version range expression.
func Parse(text string) (*Manifest, error) {
	var raw rawManifest
	if err := toml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("malformed manifest: %w", err)
	}

	required := []struct {
		field string
		value string
	}{
		{"name", raw.Name},
		{"description", raw.Description},
		{"version", raw.Version},
		{"author", raw.Author},
		{"bot_type", raw.BotType},
		{"bot_version", raw.BotVersion},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, fmt.Errorf("manifest field %q is missing", r.field)
		}
	}

	botType, err := ParseBotType(raw.BotType)
	if err != nil {
		return nil, err
	}

	version, err := semver.StrictNewVersion(raw.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", raw.Version, err)
	}

	botVersion, err := semver.NewConstraint(raw.BotVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid bot_version range %q: %w", raw.BotVersion, err)
	}

	if raw.GitHub != "" {
		if err := ValidateRepository(raw.GitHub); err != nil {
			return nil, err
		}
	}

	return &Manifest{
		Name:        raw.Name,
		Description: raw.Description,
		Version:     version,
		Author:      raw.Author,
		BotType:     botType,
		BotVersion:  botVersion,
		Repository:  raw.GitHub,
	}, nil
}

// ValidateRepository checks that a coordinate is exactly two non-empty
// slash-separated components within the length bound.
func ValidateRepository(repo string) error {
	if len(repo) > MaxRepositoryLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidRepository, repo, MaxRepositoryLength)
	}
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("%w: %q is not of the form owner/repo", ErrInvalidRepository, repo)
	}
	return nil
}
