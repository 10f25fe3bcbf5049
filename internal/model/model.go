package model

import (
	"github.com/LeonardoBeccarini/smartpot/internal/model/entities"
	"github.com/LeonardoBeccarini/smartpot/internal/model/messages"
)

// Alias per esporre tipi comuni ai servizi

type (
	DeviceState    = entities.DeviceState
	ShadowDocument = messages.ShadowDocument
)
