package node

import (
	"log"

	"github.com/LeonardoBeccarini/smartpot/internal/model/entities"
	"github.com/LeonardoBeccarini/smartpot/pkg/broker"
)

// DumpDiagnostics writes the human-readable status block.
func DumpDiagnostics(l *log.Logger, st *entities.DeviceState, floatHigh bool, state broker.State) {
	float := "LOW (refill)"
	if floatHigh {
		float = "HIGH (sufficient)"
	}
	l.Println("===== system data =====")
	l.Printf("humidity: %d%%", st.Humidity)
	l.Printf("pump: %s", entities.PumpStateOf(st.PumpOn))
	l.Printf("water level: %d", st.WaterLevel)
	l.Printf("float switch: %s", float)
	l.Printf("connection state: %d", int32(state))
	l.Println("=======================")
}
