package archiver

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const Measurement = "smartpot"

// RecordToPoint normalizza un Record in un *write.Point per InfluxDB.
func RecordToPoint(rec Record) *write.Point {
	tags := map[string]string{
		"thing_name": rec.Thing,
		"bomba":      string(rec.Pump),
	}
	fields := map[string]interface{}{
		"humedad":          rec.Humidity,
		"nivel_agua":       rec.WaterLevel,
		"necesita_recarga": rec.NeedsRefill,
	}
	if rec.Alert != "" {
		fields["alerta"] = string(rec.Alert)
	}
	return influxdb2.NewPoint(Measurement, tags, fields, rec.Time)
}
