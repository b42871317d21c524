package event

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Payload is the kind-specific data carried by an envelope.
//
// The interface is sealed: only types in this package implement it, so a type
// switch over the concrete payloads below is exhaustive. Kinds without a
// dedicated type use Custom.
type Payload interface {
	Kind() Kind
	isPayload()
}

// DataUpdated reports that a synchronized data source changed.
type DataUpdated struct {
	Dataset string         `yaml:"dataset"`
	Fields  map[string]any `yaml:"fields"`
}

// UserAction reports an explicit user interaction.
type UserAction struct {
	Action string         `yaml:"action"`
	Target string         `yaml:"target"`
	Params map[string]any `yaml:"params"`
}

// AlertTriggered announces that an alert was recorded in the derived-state store.
type AlertTriggered struct {
	AlertID  string `yaml:"alert_id"`
	Severity string `yaml:"severity"`
	Title    string `yaml:"title"`
}

// RecommendationMade announces that a recommendation was recorded.
type RecommendationMade struct {
	RecommendationID string  `yaml:"recommendation_id"`
	Domain           string  `yaml:"domain"`
	Confidence       float64 `yaml:"confidence"`
}

// InsightGenerated carries the output of an analytics collaborator.
type InsightGenerated struct {
	Topic             string             `yaml:"topic"`
	Summary           string             `yaml:"summary"`
	RequiresAttention bool               `yaml:"requires_attention"`
	Scores            map[string]float64 `yaml:"scores"`
}

// ModalActivated reports that a UI surface switched modality.
type ModalActivated struct {
	Modal    string `yaml:"modal"`
	Previous string `yaml:"previous"`
}

// NeuralDataReceived carries a batch of biometric or neural samples.
type NeuralDataReceived struct {
	Channel string    `yaml:"channel"`
	Samples []float64 `yaml:"samples"`
	Quality float64   `yaml:"quality"`
}

// SystemProactive is emitted by the proactive monitor when a rule fires.
type SystemProactive struct {
	ActionID   string `yaml:"action_id"`
	ActionKind string `yaml:"action_kind"`
	Rule       string `yaml:"rule"`
	Title      string `yaml:"title"`
}

// Custom carries data for kinds that have no dedicated payload type.
type Custom struct {
	Type Kind           `yaml:"type"`
	Data map[string]any `yaml:"data"`
}

func (DataUpdated) Kind() Kind        { return KindDataUpdated }
func (UserAction) Kind() Kind         { return KindUserAction }
func (AlertTriggered) Kind() Kind     { return KindAlertTriggered }
func (RecommendationMade) Kind() Kind { return KindRecommendationMade }
func (InsightGenerated) Kind() Kind   { return KindInsightGenerated }
func (ModalActivated) Kind() Kind     { return KindModalActivated }
func (NeuralDataReceived) Kind() Kind { return KindNeuralDataReceived }
func (SystemProactive) Kind() Kind    { return KindSystemProactive }
func (c Custom) Kind() Kind           { return c.Type }

func (DataUpdated) isPayload()        {}
func (UserAction) isPayload()         {}
func (AlertTriggered) isPayload()     {}
func (RecommendationMade) isPayload() {}
func (InsightGenerated) isPayload()   {}
func (ModalActivated) isPayload()     {}
func (NeuralDataReceived) isPayload() {}
func (SystemProactive) isPayload()    {}
func (Custom) isPayload()             {}

// PayloadFromMap builds the payload type registered for kind from a loosely
// typed map, such as one decoded from a YAML scenario file. Unknown kinds
// produce a Custom payload holding the map unchanged.
func PayloadFromMap(kind Kind, data map[string]any) (Payload, error) {
	var target Payload
	switch kind {
	case KindDataUpdated:
		target = &DataUpdated{}
	case KindUserAction:
		target = &UserAction{}
	case KindAlertTriggered:
		target = &AlertTriggered{}
	case KindRecommendationMade:
		target = &RecommendationMade{}
	case KindInsightGenerated:
		target = &InsightGenerated{}
	case KindModalActivated:
		target = &ModalActivated{}
	case KindNeuralDataReceived:
		target = &NeuralDataReceived{}
	case KindSystemProactive:
		target = &SystemProactive{}
	default:
		return Custom{Type: kind, Data: data}, nil
	}

	raw, err := yaml.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	if err := yaml.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}

	// Return the value, not the pointer, so payloads stay immutable copies.
	switch p := target.(type) {
	case *DataUpdated:
		return *p, nil
	case *UserAction:
		return *p, nil
	case *AlertTriggered:
		return *p, nil
	case *RecommendationMade:
		return *p, nil
	case *InsightGenerated:
		return *p, nil
	case *ModalActivated:
		return *p, nil
	case *NeuralDataReceived:
		return *p, nil
	case *SystemProactive:
		return *p, nil
	}
	return nil, fmt.Errorf("unsupported payload kind %q", kind)
}
