package event

import (
	"context"
	"testing"
)

func TestPriority_Rank(t *testing.T) {
	tests := []struct {
		priority Priority
		want     int
	}{
		{PriorityCritical, 0},
		{PriorityHigh, 1},
		{PriorityMedium, 2},
		{PriorityLow, 3},
		{Priority("bogus"), 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			if got := tt.priority.Rank(); got != tt.want {
				t.Errorf("Rank() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPriority_Urgent(t *testing.T) {
	if !PriorityCritical.Urgent() || !PriorityHigh.Urgent() {
		t.Error("high and critical should be urgent")
	}
	if PriorityMedium.Urgent() || PriorityLow.Urgent() {
		t.Error("medium and low should not be urgent")
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in     string
		want   Priority
		wantOK bool
	}{
		{"critical", PriorityCritical, true},
		{" HIGH ", PriorityHigh, true},
		{"Low", PriorityLow, true},
		{"", Priority(""), false},
		{"urgent", Priority("urgent"), false},
	}

	for _, tt := range tests {
		got, ok := ParsePriority(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParsePriority(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNew_TakesKindFromPayload(t *testing.T) {
	env := New(InsightGenerated{Topic: "sleep"}, PriorityMedium, "analytics")
	if env.Kind != KindInsightGenerated {
		t.Errorf("Kind = %s, want %s", env.Kind, KindInsightGenerated)
	}
	if env.Source != "analytics" {
		t.Errorf("Source = %q, want analytics", env.Source)
	}

	custom := New(Custom{Type: "coach_message"}, PriorityLow, "assistant")
	if custom.Kind != "coach_message" {
		t.Errorf("Custom kind = %s, want coach_message", custom.Kind)
	}
}

func TestEnvelope_CopyHelpers(t *testing.T) {
	base := New(UserAction{Action: "tap"}, PriorityLow, "ui")
	addressed := base.ForSubject("u1").WithCorrelation("c-1")

	if base.SubjectID != "" || base.CorrelationID != "" {
		t.Error("copy helpers must not modify the original envelope")
	}
	if addressed.SubjectID != "u1" || addressed.CorrelationID != "c-1" {
		t.Errorf("unexpected copy: %+v", addressed)
	}
}

func TestContext_RoundTrip(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("background context should carry no envelope")
	}
	if DeliveryFromContext(context.Background()) != Scheduled {
		t.Error("default delivery should be scheduled")
	}

	env := Envelope{Kind: KindDataUpdated, CorrelationID: "x"}
	ctx := NewContext(context.Background(), env, Immediate)

	got, ok := FromContext(ctx)
	if !ok || got.CorrelationID != "x" {
		t.Errorf("FromContext = (%+v, %v)", got, ok)
	}
	if DeliveryFromContext(ctx) != Immediate {
		t.Errorf("DeliveryFromContext = %s, want immediate", DeliveryFromContext(ctx))
	}
}

func TestPayloadFromMap(t *testing.T) {
	p, err := PayloadFromMap(KindInsightGenerated, map[string]any{
		"topic":              "recovery",
		"requires_attention": true,
		"scores":             map[string]any{"fatigue": 0.8},
	})
	if err != nil {
		t.Fatalf("PayloadFromMap failed: %v", err)
	}

	insight, ok := p.(InsightGenerated)
	if !ok {
		t.Fatalf("expected InsightGenerated, got %T", p)
	}
	if insight.Topic != "recovery" || !insight.RequiresAttention {
		t.Errorf("unexpected insight: %+v", insight)
	}
	if insight.Scores["fatigue"] != 0.8 {
		t.Errorf("Scores[fatigue] = %v, want 0.8", insight.Scores["fatigue"])
	}
}

func TestPayloadFromMap_UnknownKind(t *testing.T) {
	data := map[string]any{"text": "hello"}
	p, err := PayloadFromMap("coach_message", data)
	if err != nil {
		t.Fatalf("PayloadFromMap failed: %v", err)
	}
	custom, ok := p.(Custom)
	if !ok {
		t.Fatalf("expected Custom, got %T", p)
	}
	if custom.Kind() != "coach_message" || custom.Data["text"] != "hello" {
		t.Errorf("unexpected custom payload: %+v", custom)
	}
}

func TestPayloadFromMap_TypeMismatch(t *testing.T) {
	_, err := PayloadFromMap(KindNeuralDataReceived, map[string]any{
		"samples": "not-a-list",
	})
	if err == nil {
		t.Error("expected decode error for mismatched field type")
	}
}

func TestKnownKinds_HavePayloadTypes(t *testing.T) {
	for _, kind := range KnownKinds() {
		p, err := PayloadFromMap(kind, map[string]any{})
		if err != nil {
			t.Errorf("PayloadFromMap(%s) failed: %v", kind, err)
			continue
		}
		if _, isCustom := p.(Custom); isCustom {
			t.Errorf("known kind %s decoded as Custom", kind)
		}
		if p.Kind() != kind {
			t.Errorf("payload kind = %s, want %s", p.Kind(), kind)
		}
	}
}
