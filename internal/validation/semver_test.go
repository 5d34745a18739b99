package validation

import "testing"

func TestValidateBuild(t *testing.T) {
	tests := []struct {
		name    string
		build   string
		wantErr bool
	}{
		{"release", "1.4.0", false},
		{"pre-release", "2.0.0-rc.1", false},
		{"with v prefix", "v1.2.3", false},
		{"short", "1.0", false},
		{"dev build", "dev", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBuild(tt.build)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBuild(%q) error = %v, wantErr %v", tt.build, err, tt.wantErr)
			}
		})
	}
}

func TestCompareBuild(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		want    int
		wantErr bool
	}{
		{"equal", "1.0.0", "1.0.0", 0, false},
		{"older", "1.0.0", "1.1.0", -1, false},
		{"newer", "2.0.0", "1.9.9", 1, false},
		{"pre-release is older", "1.0.0-beta", "1.0.0", -1, false},
		{"invalid a", "dev", "1.0.0", 0, true},
		{"invalid b", "1.0.0", "dev", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompareBuild(tt.a, tt.b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CompareBuild(%q, %q) error = %v, wantErr %v", tt.a, tt.b, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("CompareBuild(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
