// Package archive extracts the two required documents from an uploaded
// package archive.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// The two entries every package archive must carry, matched by exact name
// at the archive root.
const (
	ManifestEntry = "aopkg.toml"
	ReadmeEntry   = "README.md"
)

// ErrMalformed is returned when the payload is not a readable zip container.
var ErrMalformed = errors.New("malformed zip archive")

// MissingEntryError names the required entry absent from the archive.
type MissingEntryError struct {
	Entry string
}

func (e *MissingEntryError) Error() string {
	return fmt.Sprintf("archive is missing required entry %q", e.Entry)
}

// Contents holds the extracted text of the two required entries.
type Contents struct {
	ManifestText string
	ReadmeText   string
}

// Extract opens the payload as a zip container and reads the manifest and
// README entries. It has no side effects; the caller is responsible for
// bounding its runtime.
func Extract(data []byte) (*Contents, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	readmeText, err := readEntry(reader, ReadmeEntry)
	if err != nil {
		return nil, err
	}

	manifestText, err := readEntry(reader, ManifestEntry)
	if err != nil {
		return nil, err
	}

	return &Contents{
		ManifestText: manifestText,
		ReadmeText:   readmeText,
	}, nil
}

func readEntry(reader *zip.Reader, name string) (string, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: opening %q: %v", ErrMalformed, name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return "", fmt.Errorf("%w: reading %q: %v", ErrMalformed, name, err)
		}
		return string(data), nil
	}
	return "", &MissingEntryError{Entry: name}
}
