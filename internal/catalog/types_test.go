package catalog

import (
	"testing"
	"time"
)

func TestProcessingStageValid(t *testing.T) {
	for _, s := range Stages {
		if !s.Valid() {
			t.Errorf("stage %q should be valid", s)
		}
	}
	for _, s := range []ProcessingStage{"", "INCOMING", "done", "review"} {
		if s.Valid() {
			t.Errorf("stage %q should not be valid", s)
		}
	}
}

func TestProcessingStageTerminal(t *testing.T) {
	terminal := map[ProcessingStage]bool{
		StageFinal:    true,
		StageRejected: true,
	}
	for _, s := range Stages {
		if got := s.Terminal(); got != terminal[s] {
			t.Errorf("stage %q: Terminal() = %v, want %v", s, got, terminal[s])
		}
	}
}

func TestSizeClassLongestEdge(t *testing.T) {
	tests := []struct {
		size SizeClass
		want int
	}{
		{SizeThumbnail, 150},
		{SizeSmall, 400},
		{SizeMedium, 800},
		{SizeLarge, 1200},
		{SizeClass("huge"), 0},
		{SizeClass(""), 0},
	}
	for _, tt := range tests {
		if got := tt.size.LongestEdge(); got != tt.want {
			t.Errorf("size %q: LongestEdge() = %d, want %d", tt.size, got, tt.want)
		}
		if tt.size.Valid() != (tt.want > 0) {
			t.Errorf("size %q: Valid() disagrees with LongestEdge()", tt.size)
		}
	}
}

func TestFormat(t *testing.T) {
	if FormatJPEG.Ext() != ".jpg" || FormatWEBP.Ext() != ".webp" {
		t.Errorf("unexpected extensions: %q %q", FormatJPEG.Ext(), FormatWEBP.Ext())
	}
	if FormatJPEG.MimeType() != "image/jpeg" || FormatWEBP.MimeType() != "image/webp" {
		t.Errorf("unexpected mime types: %q %q", FormatJPEG.MimeType(), FormatWEBP.MimeType())
	}
	if Format("png").Valid() {
		t.Error("png should not be a valid preview format")
	}
}

func TestPriorityLevelValid(t *testing.T) {
	for _, p := range []PriorityLevel{PriorityNormal, PriorityGood, PriorityExcellent} {
		if !p.Valid() {
			t.Errorf("priority %d should be valid", p)
		}
	}
	if PriorityLevel(-1).Valid() || PriorityLevel(3).Valid() {
		t.Error("out-of-range priorities should not be valid")
	}
}

func TestNeedsAttention(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	threshold := 14 * 24 * time.Hour
	recent := now.Add(-time.Hour)
	stale := now.Add(-15 * 24 * time.Hour)

	tests := []struct {
		name       string
		stage      ProcessingStage
		priority   PriorityLevel
		lastAction time.Time
		want       bool
	}{
		{"incoming always flagged", StageIncoming, PriorityNormal, recent, true},
		{"incoming flagged even when stale", StageIncoming, PriorityNormal, stale, true},
		{"reviewed recent normal", StageReviewed, PriorityNormal, recent, false},
		{"reviewed stale normal", StageReviewed, PriorityNormal, stale, true},
		{"excellent mid-workflow", StageCurated, PriorityExcellent, recent, true},
		{"good mid-workflow", StageCurated, PriorityGood, recent, false},
		{"final never flagged", StageFinal, PriorityExcellent, stale, false},
		{"rejected never flagged", StageRejected, PriorityExcellent, stale, false},
		{"zero last action skips staleness", StageBasicEdit, PriorityNormal, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NeedsAttention(tt.stage, tt.priority, tt.lastAction, threshold, now)
			if got != tt.want {
				t.Errorf("NeedsAttention(%q, %d, %v) = %v, want %v",
					tt.stage, tt.priority, tt.lastAction, got, tt.want)
			}
		})
	}

	// Disabled threshold turns off the staleness rule only.
	if NeedsAttention(StageReviewed, PriorityNormal, stale, 0, now) {
		t.Error("staleness rule should be disabled with zero threshold")
	}
	if !NeedsAttention(StageIncoming, PriorityNormal, stale, 0, now) {
		t.Error("incoming rule should survive a disabled threshold")
	}
}

func TestEncodeParams(t *testing.T) {
	raw, err := EncodeParams(ActionExposureAdjust, ExposureParams{EV: 0.5})
	if err != nil {
		t.Fatalf("EncodeParams: %v", err)
	}
	if string(raw) != `{"ev":0.5}` {
		t.Errorf("unexpected payload: %s", raw)
	}

	// Parameter shape must match the action type.
	if _, err := EncodeParams(ActionCrop, ExposureParams{EV: 1}); err == nil {
		t.Error("expected mismatch error for exposure params on crop action")
	}

	// Parameterless actions accept nil.
	raw, err = EncodeParams(ActionStageAdvance, nil)
	if err != nil || raw != nil {
		t.Errorf("nil params: got %s, %v", raw, err)
	}
}

func TestDecodeParamsRoundTrip(t *testing.T) {
	orig := CropParams{X: 10, Y: 20, Width: 3000, Height: 2000}
	raw, err := EncodeParams(ActionCrop, orig)
	if err != nil {
		t.Fatalf("EncodeParams: %v", err)
	}
	decoded, err := DecodeParams(ActionCrop, raw)
	if err != nil {
		t.Fatalf("DecodeParams: %v", err)
	}
	crop, ok := decoded.(*CropParams)
	if !ok {
		t.Fatalf("decoded type %T, want *CropParams", decoded)
	}
	if *crop != orig {
		t.Errorf("round trip mismatch: got %+v, want %+v", *crop, orig)
	}
}

func TestDecodeParamsUnknownAction(t *testing.T) {
	// Unknown action payloads pass through untyped rather than failing.
	params, err := DecodeParams(ActionType("sepia-tone"), []byte(`{"amount":0.3}`))
	if err != nil {
		t.Fatalf("DecodeParams: %v", err)
	}
	if params != nil {
		t.Errorf("expected nil typed params for unknown action, got %T", params)
	}
}
