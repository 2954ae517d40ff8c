package catalog

import (
	"encoding/json"
	"fmt"
)

// ActionType identifies what a ledger entry records.
type ActionType string

const (
	ActionStageAdvance   ActionType = "stage-advance"
	ActionQuickReview    ActionType = "quick-review"
	ActionReject         ActionType = "reject"
	ActionUnreject       ActionType = "unreject"
	ActionExposureAdjust ActionType = "exposure-adjust"
	ActionCrop           ActionType = "crop"
	ActionColorGrade     ActionType = "color-grade"
)

// EditParams is the typed parameter payload of a non-destructive edit.
// Each action type with parameters has its own concrete shape; the payload
// persists as JSON in the ledger.
type EditParams interface {
	actionType() ActionType
}

// ExposureParams describes an exposure adjustment in EV stops.
type ExposureParams struct {
	EV         float64 `json:"ev"`
	Highlights float64 `json:"highlights,omitempty"`
	Shadows    float64 `json:"shadows,omitempty"`
}

func (ExposureParams) actionType() ActionType { return ActionExposureAdjust }

// CropParams describes a crop rectangle in source pixel coordinates.
type CropParams struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (CropParams) actionType() ActionType { return ActionCrop }

// ColorGradeParams describes a color grade adjustment.
type ColorGradeParams struct {
	Temperature float64 `json:"temperature,omitempty"`
	Tint        float64 `json:"tint,omitempty"`
	Saturation  float64 `json:"saturation,omitempty"`
	Preset      string  `json:"preset,omitempty"`
}

func (ColorGradeParams) actionType() ActionType { return ActionColorGrade }

// EncodeParams validates that params matches actionType and serializes it.
// Action types without parameters accept only a nil payload.
func EncodeParams(actionType ActionType, params EditParams) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if params.actionType() != actionType {
		return nil, fmt.Errorf("%w: %T parameters not valid for action %q",
			ErrInvalidInput, params, actionType)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %q parameters: %v", ErrInvalidInput, actionType, err)
	}
	return raw, nil
}

// DecodeParams deserializes a ledger payload back into its typed shape.
// Unknown action types return the raw payload untouched so history stays
// readable across applications that record action types this catalog does
// not know about.
func DecodeParams(actionType ActionType, raw json.RawMessage) (EditParams, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var params EditParams
	switch actionType {
	case ActionExposureAdjust:
		params = &ExposureParams{}
	case ActionCrop:
		params = &CropParams{}
	case ActionColorGrade:
		params = &ColorGradeParams{}
	default:
		return nil, nil
	}

	if err := json.Unmarshal(raw, params); err != nil {
		return nil, fmt.Errorf("%w: decoding %q parameters: %v", ErrInvalidInput, actionType, err)
	}
	return params, nil
}
