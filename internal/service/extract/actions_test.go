package extract

import (
	"context"
	"reflect"
	"testing"
)

func TestActionItems(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"request with speaker", "Alice: Please send the contract by Friday.", []string{"send the contract by Friday"}},
		{"explicit marker", "Action item: update the CRM.", []string{"update the CRM"}},
		{"commitment", "We'll review the numbers next week.", []string{"review the numbers next week"}},
		{"none", "The weather is nice.", nil},
		{"japanese deadline", "資料を明日までに送ってください。", []string{"資料を明日までに送ってください"}},
		{"deduplicated", "Please call Bob. please call bob.", []string{"call Bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := actionItems(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("actionItems(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
