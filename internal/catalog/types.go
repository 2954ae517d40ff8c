package catalog

import (
	"encoding/json"
	"time"
)

// ProcessingStage is a node in the fixed editorial workflow graph.
type ProcessingStage string

const (
	StageIncoming  ProcessingStage = "incoming"
	StageReviewed  ProcessingStage = "reviewed"
	StageBasicEdit ProcessingStage = "basic_edit"
	StageCurated   ProcessingStage = "curated"
	StageRefined   ProcessingStage = "refined"
	StageFinal     ProcessingStage = "final"
	StageRejected  ProcessingStage = "rejected"
)

// Stages lists every workflow stage in graph order.
var Stages = []ProcessingStage{
	StageIncoming, StageReviewed, StageBasicEdit,
	StageCurated, StageRefined, StageFinal, StageRejected,
}

// Valid reports whether s is a known workflow stage.
func (s ProcessingStage) Valid() bool {
	switch s {
	case StageIncoming, StageReviewed, StageBasicEdit,
		StageCurated, StageRefined, StageFinal, StageRejected:
		return true
	}
	return false
}

// Terminal reports whether s ends the workflow. REJECTED is terminal for
// forward movement but may be manually un-rejected back to INCOMING.
func (s ProcessingStage) Terminal() bool {
	return s == StageFinal || s == StageRejected
}

// PriorityLevel is an operator-set quality hint. It never affects workflow
// validity.
type PriorityLevel int

const (
	PriorityNormal    PriorityLevel = 0
	PriorityGood      PriorityLevel = 1
	PriorityExcellent PriorityLevel = 2
)

// Valid reports whether p is a known priority level.
func (p PriorityLevel) Valid() bool {
	return p >= PriorityNormal && p <= PriorityExcellent
}

func (p PriorityLevel) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityGood:
		return "good"
	case PriorityExcellent:
		return "excellent"
	default:
		return "unknown"
	}
}

// Photo is one cataloged original, identified by its content fingerprint.
// ContentFingerprint and CanonicalPath are immutable once set;
// ProcessingStage is written only by the workflow engine.
type Photo struct {
	ID                 string          `json:"id"`
	ContentFingerprint string          `json:"contentFingerprint"`
	CanonicalPath      string          `json:"canonicalPath"`
	OriginalName       string          `json:"originalName"`
	FileSize           int64           `json:"fileSize"`
	MimeType           string          `json:"mimeType"`
	Width              int             `json:"width,omitempty"`
	Height             int             `json:"height,omitempty"`
	ProcessingStage    ProcessingStage `json:"processingStage"`
	PriorityLevel      PriorityLevel   `json:"priorityLevel"`
	NeedsAttention     bool            `json:"needsAttention"`
	LastActionAt       time.Time       `json:"lastActionAt"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// SizeClass is a preview size bucket with a fixed longest-edge target.
type SizeClass string

const (
	SizeThumbnail SizeClass = "thumbnail"
	SizeSmall     SizeClass = "small"
	SizeMedium    SizeClass = "medium"
	SizeLarge     SizeClass = "large"
)

// SizeClasses lists every preview size bucket.
var SizeClasses = []SizeClass{SizeThumbnail, SizeSmall, SizeMedium, SizeLarge}

// LongestEdge returns the target longest-edge dimension in pixels, or 0 for
// an unknown size class.
func (s SizeClass) LongestEdge() int {
	switch s {
	case SizeThumbnail:
		return 150
	case SizeSmall:
		return 400
	case SizeMedium:
		return 800
	case SizeLarge:
		return 1200
	}
	return 0
}

// Valid reports whether s is a known size class.
func (s SizeClass) Valid() bool {
	return s.LongestEdge() > 0
}

// Format is a preview output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatWEBP Format = "webp"
)

// Formats lists every supported preview format.
var Formats = []Format{FormatJPEG, FormatWEBP}

// Valid reports whether f is a supported preview format.
func (f Format) Valid() bool {
	return f == FormatJPEG || f == FormatWEBP
}

// Ext returns the file extension for the format, including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatWEBP:
		return ".webp"
	}
	return ""
}

// MimeType returns the MIME type for the format.
func (f Format) MimeType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWEBP:
		return "image/webp"
	}
	return "application/octet-stream"
}

// PreviewArtifact is one derived preview, keyed by (photo, size, format).
// At most one artifact exists per key; regeneration overwrites in place.
type PreviewArtifact struct {
	PhotoID           string    `json:"photoId"`
	Size              SizeClass `json:"size"`
	Format            Format    `json:"format"`
	Path              string    `json:"path"`
	SourceFingerprint string    `json:"sourceFingerprint"`
	FileSize          int64     `json:"fileSize"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

// ProcessingAction is one append-only ledger entry: a stage transition or a
// non-destructive edit. Entries are never mutated or deleted.
type ProcessingAction struct {
	ID         int64           `json:"id"`
	PhotoID    string          `json:"photoId"`
	StageFrom  ProcessingStage `json:"stageFrom"`
	StageTo    ProcessingStage `json:"stageTo"`
	ActionType ActionType      `json:"actionType"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Origin     string          `json:"origin,omitempty"`
	BatchID    string          `json:"batchId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Metadata holds opaque extracted photo metadata. Only Orientation is
// consumed by the catalog itself, for preview generation.
type Metadata struct {
	PhotoID      string          `json:"photoId"`
	CameraMake   string          `json:"cameraMake,omitempty"`
	CameraModel  string          `json:"cameraModel,omitempty"`
	LensModel    string          `json:"lensModel,omitempty"`
	FocalLength  float64         `json:"focalLength,omitempty"`
	Aperture     float64         `json:"aperture,omitempty"`
	ISO          int             `json:"iso,omitempty"`
	GPSLatitude  float64         `json:"gpsLatitude,omitempty"`
	GPSLongitude float64         `json:"gpsLongitude,omitempty"`
	DateTaken    time.Time       `json:"dateTaken,omitempty"`
	Orientation  int             `json:"orientation,omitempty"`
	RawEXIF      json.RawMessage `json:"rawExif,omitempty"`
}
