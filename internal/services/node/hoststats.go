package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// hostCollector reads board CPU, memory and uptime on every scrape.
type hostCollector struct {
	cpu    *prometheus.Desc
	memory *prometheus.Desc
	uptime *prometheus.Desc
}

func newHostCollector() *hostCollector {
	return &hostCollector{
		cpu:    prometheus.NewDesc("smartpot_host_cpu_percent", "CPU usage percent (0-100) since the last scrape.", nil, nil),
		memory: prometheus.NewDesc("smartpot_host_memory_used_bytes", "Memory used in bytes.", nil, nil),
		uptime: prometheus.NewDesc("smartpot_host_uptime_seconds", "Host uptime.", nil, nil),
	}
}

func (c *hostCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpu
	ch <- c.memory
	ch <- c.uptime
}

func (c *hostCollector) Collect(ch chan<- prometheus.Metric) {
	// interval 0: confronto con la chiamata precedente, non blocca lo scrape
	if percent, err := cpu.Percent(0, false); err == nil && len(percent) > 0 {
		ch <- prometheus.MustNewConstMetric(c.cpu, prometheus.GaugeValue, percent[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, float64(vm.Used))
	}
	if up, err := host.Uptime(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, float64(up))
	}
}
