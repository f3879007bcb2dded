package service

import (
	"testing"
)

func TestPresetCatalog(t *testing.T) {
	tests := []struct {
		name         string
		threshold    float64
		feather      int
		focusPrimary bool
	}{
		{PresetPortraitUpperBody, 6.5, 3, true},
		{PresetFullBody, 7.0, 5, false},
		{PresetAggressive, 5.0, 1, true},
		{PresetConservative, 9.0, 8, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := LookupPreset(tt.name)
			if !ok {
				t.Fatalf("preset %s not found", tt.name)
			}
			params := p.Parameters()
			if params.Threshold == nil || *params.Threshold != tt.threshold {
				t.Errorf("threshold = %v, want %v", params.Threshold, tt.threshold)
			}
			if params.FeatherRadius != tt.feather {
				t.Errorf("feather = %d, want %d", params.FeatherRadius, tt.feather)
			}
			if params.FocusPrimaryRegion != tt.focusPrimary {
				t.Errorf("focusPrimary = %v, want %v", params.FocusPrimaryRegion, tt.focusPrimary)
			}
			if err := params.Validate(); err != nil {
				t.Errorf("preset parameters invalid: %v", err)
			}
		})
	}
}

func TestPresetImmutable(t *testing.T) {
	p, _ := LookupPreset(PresetAggressive)
	params := p.Parameters()
	*params.Threshold = 99
	params.FeatherRadius = 42

	again, _ := LookupPreset(PresetAggressive)
	if *again.Parameters().Threshold != 5.0 || again.Parameters().FeatherRadius != 1 {
		t.Errorf("preset was modified through a returned copy")
	}
}

func TestLookupPresetCaseInsensitive(t *testing.T) {
	if _, ok := LookupPreset("fullbody"); !ok {
		t.Errorf("lookup should ignore case")
	}
	if _, ok := LookupPreset("nope"); ok {
		t.Errorf("unknown preset should not be found")
	}

	custom, ok := LookupPreset("custom")
	if !ok {
		t.Fatalf("custom preset should always be available")
	}
	if custom.Parameters().Threshold != nil {
		t.Errorf("custom preset should start with an automatic threshold")
	}
}

func TestPresetsSorted(t *testing.T) {
	list := Presets()
	if len(list) != 4 {
		t.Fatalf("got %d presets, want 4", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Name >= list[i].Name {
			t.Errorf("presets not sorted: %s before %s", list[i-1].Name, list[i].Name)
		}
	}
}
