package manifest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = `
name = "EXPORT_MODULE"
description = "Exports stuff"
version = "1.0.0-pre"
author = "Nadyita <nadyita@hodorraid.org>"
bot_type = "Nadybot"
bot_version = "^5.0.0"
`

func TestParseValid(t *testing.T) {
	t.Parallel()

	m, err := Parse(validManifest)
	require.NoError(t, err)

	assert.Equal(t, "EXPORT_MODULE", m.Name)
	assert.Equal(t, "Exports stuff", m.Description)
	assert.Equal(t, "1.0.0-pre", m.Version.String())
	assert.Equal(t, "Nadyita <nadyita@hodorraid.org>", m.Author)
	assert.Equal(t, BotTypeNadybot, m.BotType)
	assert.Equal(t, "^5.0.0", m.BotVersion.String())
	assert.Empty(t, m.Repository)
}

func TestParseWithRepository(t *testing.T) {
	t.Parallel()

	input := validManifest + "\ngithub = \"Nadybot/EXPORT_MODULE\"\n"
	m, err := Parse(input)
	require.NoError(t, err)
	assert.Equal(t, "Nadybot/EXPORT_MODULE", m.Repository)
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	first, err := Parse(validManifest)
	require.NoError(t, err)

	// Re-serialize every parsed field and parse again.
	rebuilt := strings.Join([]string{
		`name = "` + first.Name + `"`,
		`description = "` + first.Description + `"`,
		`version = "` + first.Version.String() + `"`,
		`author = "` + first.Author + `"`,
		`bot_type = "` + first.BotType.String() + `"`,
		`bot_version = "` + first.BotVersion.String() + `"`,
	}, "\n")

	second, err := Parse(rebuilt)
	require.NoError(t, err)

	assert.Equal(t, first.Name, second.Name)
	assert.True(t, first.Version.Equal(second.Version))
	assert.Equal(t, first.BotType, second.BotType)
	assert.Equal(t, first.BotVersion.String(), second.BotVersion.String())
}

func TestParseBotType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected BotType
		wantErr  bool
	}{
		{name: "nadybot", input: "Nadybot", expected: BotTypeNadybot},
		{name: "tyrbot", input: "Tyrbot", expected: BotTypeTyrbot},
		{name: "budabot", input: "Budabot", expected: BotTypeBudabot},
		{name: "bebot canonical", input: "BeBot", expected: BotTypeBeBot},
		{name: "bebot alternate spelling", input: "Bebot", expected: BotTypeBeBot},
		{name: "wrong case", input: "nadybot", wantErr: true},
		{name: "bebot other casing", input: "bebot", wantErr: true},
		{name: "unknown runtime", input: "Discord", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseBotType(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownBotType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseRejectsUnknownBotType(t *testing.T) {
	t.Parallel()

	input := strings.Replace(validManifest, "Nadybot", "Slackbot", 1)
	_, err := Parse(input)
	require.ErrorIs(t, err, ErrUnknownBotType)
}

func TestParseRejectsMalformedVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		version string
	}{
		{name: "missing patch", version: "1.0"},
		{name: "not a version", version: "latest"},
		{name: "leading v", version: "v1.0.0"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			input := strings.Replace(validManifest, "1.0.0-pre", tt.version, 1)
			_, err := Parse(input)
			require.Error(t, err)
		})
	}
}

func TestParseRejectsMalformedRange(t *testing.T) {
	t.Parallel()

	input := strings.Replace(validManifest, "^5.0.0", "not-a-range", 1)
	_, err := Parse(input)
	require.Error(t, err)
}

func TestParseRejectsMissingFields(t *testing.T) {
	t.Parallel()

	for _, field := range []string{"name", "description", "version", "author", "bot_type", "bot_version"} {
		field := field
		t.Run(field, func(t *testing.T) {
			t.Parallel()
			var lines []string
			for _, line := range strings.Split(strings.TrimSpace(validManifest), "\n") {
				if !strings.HasPrefix(line, field+" ") {
					lines = append(lines, line)
				}
			}
			_, err := Parse(strings.Join(lines, "\n"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), fmt.Sprintf("%q is missing", field))
		})
	}
}

func TestParseReportsFirstMissingField(t *testing.T) {
	t.Parallel()

	// With several fields absent the reported field must be stable across
	// runs, in declaration order.
	_, err := Parse("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"name" is missing`)

	_, err = Parse(`name = "helpbot"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"description" is missing`)
}

func TestValidateRepository(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		repo    string
		wantErr bool
	}{
		{name: "valid", repo: "Nadybot/EXPORT_MODULE"},
		{name: "missing slash", repo: "Nadybot", wantErr: true},
		{name: "empty owner", repo: "/repo", wantErr: true},
		{name: "empty repo", repo: "owner/", wantErr: true},
		{name: "too many components", repo: "a/b/c", wantErr: true},
		{name: "too long", repo: strings.Repeat("a", 39) + "/r", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateRepository(tt.repo)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidRepository)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Parse("this is not toml = = =")
	require.Error(t, err)
}
