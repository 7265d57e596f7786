package commands

import (
	"reflect"
	"testing"
)

func TestParseSetFlags(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", pairs: nil, want: nil},
		{
			name:  "typed scalars",
			pairs: []string{"region=fr-par", "disk_size_gb=100", "protected=true"},
			want:  map[string]any{"region": "fr-par", "disk_size_gb": 100, "protected": true},
		},
		{
			name:  "nested keys",
			pairs: []string{"auto_stop.enabled=true", "auto_stop.timeout_minutes=30"},
			want: map[string]any{
				"auto_stop": map[string]any{"enabled": true, "timeout_minutes": 30},
			},
		},
		{name: "missing equals", pairs: []string{"region"}, wantErr: true},
		{name: "empty key", pairs: []string{"=value"}, wantErr: true},
		{name: "empty key segment", pairs: []string{"a..b=1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSetFlags(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSetFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseSetFlags() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
