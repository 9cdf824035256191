// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package fdpmetrics exports the state of an fdp.Config as Prometheus
// metrics.
package fdpmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sincerejisoo/FEMU-FDP/lib/fdp"
)

const namespace = "femu_fdp"

// Collector reads an fdp.Config each time it is scraped.  Because a
// Config is not safe for concurrent use, nothing may be changing the
// Config while Gather runs.
type Collector struct {
	cfg *fdp.Config

	enabled     *prometheus.Desc
	ruCapacity  *prometheus.Desc
	ruWritten   *prometheus.Desc
	ruRemaining *prometheus.Desc
	ruFreeLines *prometheus.Desc
	ruFullLines *prometheus.Desc
	ruState     *prometheus.Desc
	hostBytes   *prometheus.Desc
	mediaBytes  *prometheus.Desc
	ruSwitches  *prometheus.Desc
	writeCmds   *prometheus.Desc
	readCmds    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(cfg *fdp.Config) *Collector {
	ruLabels := []string{"rgid", "ruid"}
	return &Collector{
		cfg: cfg,

		enabled: prometheus.NewDesc(namespace+"_enabled",
			"Whether flexible data placement is enabled (1) or not (0).", nil, nil),
		ruCapacity: prometheus.NewDesc(namespace+"_ru_capacity_bytes",
			"Capacity of the reclaim unit.", ruLabels, nil),
		ruWritten: prometheus.NewDesc(namespace+"_ru_written_bytes",
			"Host bytes written to the reclaim unit.", ruLabels, nil),
		ruRemaining: prometheus.NewDesc(namespace+"_ru_remaining_bytes",
			"Bytes the reclaim unit can still take.", ruLabels, nil),
		ruFreeLines: prometheus.NewDesc(namespace+"_ru_free_lines",
			"Lines queued behind the active line.", ruLabels, nil),
		ruFullLines: prometheus.NewDesc(namespace+"_ru_full_lines",
			"Lines the reclaim unit has filled.", ruLabels, nil),
		ruState: prometheus.NewDesc(namespace+"_ru_state",
			"Reclaim unit handle state (0=unused, 1=host-specified).", ruLabels, nil),
		writeCmds: prometheus.NewDesc(namespace+"_ru_host_write_commands_total",
			"Host write commands placed on the reclaim unit.", ruLabels, nil),
		readCmds: prometheus.NewDesc(namespace+"_ru_host_read_commands_total",
			"Host read commands counted against the reclaim unit.", ruLabels, nil),
		hostBytes: prometheus.NewDesc(namespace+"_host_written_bytes_total",
			"Host bytes written through placement handles.", nil, nil),
		mediaBytes: prometheus.NewDesc(namespace+"_media_written_bytes_total",
			"Media bytes written through placement handles.", nil, nil),
		ruSwitches: prometheus.NewDesc(namespace+"_ru_switches_total",
			"Times a reclaim unit moved onto a fresh line.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range []*prometheus.Desc{
		c.enabled,
		c.ruCapacity, c.ruWritten, c.ruRemaining,
		c.ruFreeLines, c.ruFullLines, c.ruState,
		c.writeCmds, c.readCmds,
		c.hostBytes, c.mediaBytes, c.ruSwitches,
	} {
		ch <- desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var enabled float64
	if c.cfg.Enabled() {
		enabled = 1
	}
	ch <- prometheus.MustNewConstMetric(c.enabled, prometheus.GaugeValue, enabled)

	for rgid := uint32(0); rgid < c.cfg.NRG(); rgid++ {
		rg := c.cfg.ReclaimGroup(rgid)
		for i := range rg.RUs {
			ru := &rg.RUs[i]
			labels := []string{
				strconv.FormatUint(uint64(ru.RGID), 10),
				strconv.FormatUint(uint64(ru.RUID), 10),
			}
			gauge := func(desc *prometheus.Desc, val float64) {
				ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, val, labels...)
			}
			gauge(c.ruCapacity, float64(ru.Capacity))
			gauge(c.ruWritten, float64(ru.BytesWritten))
			gauge(c.ruRemaining, float64(ru.Remaining()))
			gauge(c.ruFreeLines, float64(ru.FreeLineCount()))
			gauge(c.ruFullLines, float64(ru.FullLineCount()))
			gauge(c.ruState, float64(ru.State))
			ch <- prometheus.MustNewConstMetric(c.writeCmds, prometheus.CounterValue, float64(ru.HostWriteCmds), labels...)
			ch <- prometheus.MustNewConstMetric(c.readCmds, prometheus.CounterValue, float64(ru.HostReadCmds), labels...)
		}
	}

	totals := c.cfg.Totals()
	ch <- prometheus.MustNewConstMetric(c.hostBytes, prometheus.CounterValue, float64(totals.HostBytes))
	ch <- prometheus.MustNewConstMetric(c.mediaBytes, prometheus.CounterValue, float64(totals.MediaBytes))
	ch <- prometheus.MustNewConstMetric(c.ruSwitches, prometheus.CounterValue, float64(totals.RUSwitches))
}

// Register adds a Collector for cfg to reg.
func Register(reg prometheus.Registerer, cfg *fdp.Config) (*Collector, error) {
	c := NewCollector(cfg)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}
