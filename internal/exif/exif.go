// Package exif is the boundary to the external metadata extraction tool.
// The catalog only consumes the orientation value itself; everything else
// is stored opaquely alongside the photo.
package exif

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/logging"
)

// Extractor extracts metadata from a photo file.
type Extractor interface {
	Extract(ctx context.Context, path string) (*catalog.Metadata, error)
}

// ToolExtractor shells out to exiftool.
type ToolExtractor struct {
	toolPath string
}

// NewToolExtractor locates exiftool on PATH. Returns an error if the tool
// is not installed; callers typically fall back to NoopExtractor.
func NewToolExtractor() (*ToolExtractor, error) {
	toolPath, err := exec.LookPath("exiftool")
	if err != nil {
		return nil, fmt.Errorf("exiftool not found: %w", err)
	}
	logging.Debug("Using exiftool: %s", toolPath)
	return &ToolExtractor{toolPath: toolPath}, nil
}

// rawRecord is the subset of exiftool -j output the catalog maps into
// structured fields. Numeric fields arrive as strings or numbers depending
// on the source file, hence json.Number.
type rawRecord struct {
	Make             string      `json:"Make"`
	Model            string      `json:"Model"`
	LensModel        string      `json:"LensModel"`
	FocalLength      string      `json:"FocalLength"`
	Aperture         json.Number `json:"Aperture"`
	ISO              json.Number `json:"ISO"`
	GPSLatitude      json.Number `json:"GPSLatitude"`
	GPSLongitude     json.Number `json:"GPSLongitude"`
	DateTimeOriginal string      `json:"DateTimeOriginal"`
	Orientation      json.Number `json:"Orientation#"`
}

// Extract runs exiftool -j on the file and maps the structured fields,
// keeping the full JSON record as the opaque raw payload.
func (t *ToolExtractor) Extract(ctx context.Context, path string) (*catalog.Metadata, error) {
	cmd := exec.CommandContext(ctx, t.toolPath,
		"-j",    // JSON output
		"-n",    // numeric GPS values
		"-fast", // stop at the first metadata block
		"-Orientation#",
		"-Make", "-Model", "-LensModel",
		"-FocalLength", "-Aperture", "-ISO",
		"-GPSLatitude", "-GPSLongitude",
		"-DateTimeOriginal",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("exiftool failed: %v, stderr: %s", err, stderr.String())
	}

	var records []rawRecord
	if err := json.Unmarshal(stdout.Bytes(), &records); err != nil {
		return nil, fmt.Errorf("failed to parse exiftool output: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("exiftool produced no records for %s", path)
	}

	rec := records[0]
	meta := &catalog.Metadata{
		CameraMake:   rec.Make,
		CameraModel:  rec.Model,
		LensModel:    rec.LensModel,
		FocalLength:  parseFocalLength(rec.FocalLength),
		Aperture:     numberFloat(rec.Aperture),
		ISO:          int(numberFloat(rec.ISO)),
		GPSLatitude:  numberFloat(rec.GPSLatitude),
		GPSLongitude: numberFloat(rec.GPSLongitude),
		Orientation:  int(numberFloat(rec.Orientation)),
		RawEXIF:      json.RawMessage(stdout.Bytes()),
	}
	if meta.Orientation < 1 || meta.Orientation > 8 {
		meta.Orientation = 1
	}
	if rec.DateTimeOriginal != "" {
		// exiftool's date format uses colons in the date part
		if ts, err := time.ParseInLocation("2006:01:02 15:04:05", rec.DateTimeOriginal, time.Local); err == nil {
			meta.DateTaken = ts
		}
	}
	return meta, nil
}

// parseFocalLength handles values like "50.0 mm".
func parseFocalLength(s string) float64 {
	if s == "" {
		return 0
	}
	var num string
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			num += string(r)
		} else if num != "" {
			break
		}
	}
	v, _ := strconv.ParseFloat(num, 64)
	return v
}

func numberFloat(n json.Number) float64 {
	v, _ := n.Float64()
	return v
}

// NoopExtractor returns empty metadata with the default orientation. Used
// when exiftool is not installed; ingest still succeeds without metadata.
type NoopExtractor struct{}

// Extract returns default metadata.
func (NoopExtractor) Extract(ctx context.Context, path string) (*catalog.Metadata, error) {
	return &catalog.Metadata{Orientation: 1}, nil
}
