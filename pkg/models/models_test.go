package models

import "testing"

func TestLossCategoryNormalize(t *testing.T) {
	cases := []struct {
		in   LossCategory
		want LossCategory
	}{
		{"", LossUnknown},
		{"rework/scrap", LossReworkScrap},
		{"value-added", CategoryValueAdded},
		{LossSpeedLoss, LossSpeedLoss},
		{"something_else", "something_else"},
	}

	for _, tc := range cases {
		if got := tc.in.Normalize(); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKnownLossCategory(t *testing.T) {
	for _, c := range []LossCategory{
		LossUnplannedStop, LossPlannedStop, LossSmallStop, LossSpeedLoss,
		LossReworkScrap, LossStartup, LossUnknown, CategoryValueAdded,
		"rework/scrap", "value-added", "",
	} {
		if !KnownLossCategory(c) {
			t.Errorf("expected %q to be known", c)
		}
	}

	if KnownLossCategory("paint_drying") {
		t.Error("expected unrecognized category to be unknown")
	}
}
