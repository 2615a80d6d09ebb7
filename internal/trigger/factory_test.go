// internal/trigger/factory_test.go
package trigger

import (
	"fmt"
	"testing"
)

func TestNewTrigger(t *testing.T) {
	tests := []struct {
		name        string
		triggerType string
		wantType    string
	}{
		{"filesystem", "filesystem", "*trigger.Filesystem"},
		{"scheduled", "scheduled", "*trigger.Scheduled"},
		{"manual", "manual", "*trigger.Manual"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Type:           tt.triggerType,
				WatchPaths:     []string{"/tmp/config.yaml"},
				CronExpression: "0 0 * * * *",
			}

			trigger, err := New(tt.name, cfg)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer trigger.Stop()

			if got := fmt.Sprintf("%T", trigger); got != tt.wantType {
				t.Errorf("expected %s, got %s", tt.wantType, got)
			}
			if trigger.Name() != tt.name {
				t.Errorf("expected name %s, got %s", tt.name, trigger.Name())
			}
		})
	}
}

func TestNewTrigger_Unknown(t *testing.T) {
	if _, err := New("x", Config{Type: "webhook"}); err == nil {
		t.Error("expected error for unknown trigger type")
	}
}
