package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// Reading is one archived report as served by /reports/latest.
type Reading struct {
	Thing       string  `json:"thing_name"`
	Humidity    float64 `json:"humedad"`
	WaterLevel  float64 `json:"nivel_agua"`
	Pump        string  `json:"bomba"`
	NeedsRefill bool    `json:"necesita_recarga"`
	Alert       string  `json:"alerta,omitempty"`
	Time        string  `json:"time"` // RFC3339
}

type latestQueryParams struct {
	Thing     string
	Minutes   int
	Limit     int
	TimeoutMS int
}

func parseLatest(r *http.Request, defMin, defLim, defTOms int) latestQueryParams {
	q := r.URL.Query()
	get := func(k string, def, min, max int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < min {
					return min
				}
				if max > 0 && n > max {
					return max
				}
				return n
			}
		}
		return def
	}
	return latestQueryParams{
		Thing:     strings.TrimSpace(q.Get("thing")),
		Minutes:   get("minutes", defMin, 1, 7*24*60),
		Limit:     get("limit", defLim, 1, 500),
		TimeoutMS: get("timeout_ms", defTOms, 200, 5000),
	}
}

func buildFlux(bucket, thing string, minutes, limit int) string {
	filter := fmt.Sprintf(`r._measurement == %q`, Measurement)
	if thing != "" {
		filter += fmt.Sprintf(` and r.thing_name == %q`, thing)
	}
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => %s)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, minutes, filter, limit)
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return 0
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// NewLatestHandler: GET /reports/latest?thing=prueba1&limit=20[&minutes=1440]
func NewLatestHandler(influx influxdb2.Client, org, bucket string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := parseLatest(r, 1440, 20, 2000)

		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
		defer cancel()

		res, err := influx.QueryAPI(org).Query(ctx, buildFlux(bucket, p.Thing, p.Minutes, p.Limit))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Error", "influx-query-error")
			_, _ = w.Write([]byte("[]"))
			return
		}
		defer func() { _ = res.Close() }()

		out := make([]Reading, 0, p.Limit)
		for res.Next() {
			rec := res.Record()
			refill, _ := rec.ValueByKey("necesita_recarga").(bool)
			out = append(out, Reading{
				Thing:       asString(rec.ValueByKey("thing_name")),
				Humidity:    asFloat(rec.ValueByKey("humedad")),
				WaterLevel:  asFloat(rec.ValueByKey("nivel_agua")),
				Pump:        asString(rec.ValueByKey("bomba")),
				NeedsRefill: refill,
				Alert:       asString(rec.ValueByKey("alerta")),
				Time:        rec.Time().UTC().Format(time.RFC3339),
			})
		}
		if res.Err() != nil {
			w.Header().Set("X-Error", "influx-iter-error")
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
}
