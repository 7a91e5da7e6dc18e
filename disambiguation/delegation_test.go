package disambiguation

import "testing"

func TestIsDelegation(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"you decide", true},
		{"You decide!", true},
		{"ok, up to you.", true},
		{"Your call", true},
		{"whatever you think is best", true},
		{"theo ý bạn", true},
		{"Tùy bạn nhé", true},
		{"dealer's choice", true},
		{"I will decide later", false},
		{"you decided already", false},
		{"fix it", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := IsDelegation(tt.query); got != tt.want {
				t.Errorf("IsDelegation(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestRenderWindow_Empty(t *testing.T) {
	if got := RenderWindow(nil); got != NoHistoryText {
		t.Errorf("RenderWindow(nil) = %q, want %q", got, NoHistoryText)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg.RecentWindow = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative recent window")
	}
}

func TestConfigApplyDefaults_KeepsZeroTemperature(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	if cfg.RecentWindow != DefaultRecentWindow {
		t.Errorf("RecentWindow = %d, want %d", cfg.RecentWindow, DefaultRecentWindow)
	}
	if cfg.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", cfg.Temperature)
	}
}
