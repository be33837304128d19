package timer

import "github.com/verte-zerg/wrangler/internal/model"

// DefaultPresetID names the preset used when none is configured.
const DefaultPresetID = "classic"

// Presets lists the built-in focus/break pairs in display order.
var Presets = []model.Preset{
	{ID: "short-sprint", Name: "Short Sprint", Focus: 10, Break: 2, Description: "Quick burst for small tasks"},
	{ID: "classic", Name: "Classic", Focus: 25, Break: 5, Description: "Traditional Pomodoro"},
	{ID: "long", Name: "Long", Focus: 50, Break: 10, Description: "Extended focus session"},
	{ID: "deep", Name: "Deep Work", Focus: 90, Break: 15, Description: "Deep work session"},
}

// PresetByID looks up a preset.
func PresetByID(id string) (model.Preset, bool) {
	for _, p := range Presets {
		if p.ID == id {
			return p, true
		}
	}
	return model.Preset{}, false
}

// DefaultPreset returns the classic 25/5 preset.
func DefaultPreset() model.Preset {
	p, _ := PresetByID(DefaultPresetID)
	return p
}

// NextPreset returns the preset after id, wrapping around. Unknown ids yield
// the first preset.
func NextPreset(id string) model.Preset {
	for i, p := range Presets {
		if p.ID == id {
			return Presets[(i+1)%len(Presets)]
		}
	}
	return Presets[0]
}
