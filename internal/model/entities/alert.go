package entities

// WaterAlert is the optional alert carried by a reported-state document.
type WaterAlert string

const (
	AlertNone     WaterAlert = ""
	AlertLowWater WaterAlert = "NIVEL_BAJO_AGUA"
	AlertRestored WaterAlert = "NIVEL_NORMAL_AGUA"
)
