package exporter

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is a prometheus.Collector that reports the poller's snapshot
// at scrape time. Scrapes never hit the switch directly; the poller owns
// that cadence.
type Collector struct {
	provider  SnapshotProvider
	accountID int
	startTime time.Time

	activeCallsDesc *prometheus.Desc
	cdrRecordsDesc  *prometheus.Desc
	cdrCostDesc     *prometheus.Desc
	cdrDurationDesc *prometheus.Desc
	cdrFailedDesc   *prometheus.Desc
	lastPollDesc    *prometheus.Desc
	uptimeDesc      *prometheus.Desc
}

// NewCollector creates a collector over the given snapshot provider.
func NewCollector(provider SnapshotProvider, accountID int, startTime time.Time) *Collector {
	return &Collector{
		provider:  provider,
		accountID: accountID,
		startTime: startTime,

		activeCallsDesc: prometheus.NewDesc(
			"sippy_account_active_calls",
			"Calls currently in progress on the account",
			[]string{"account"}, nil,
		),
		cdrRecordsDesc: prometheus.NewDesc(
			"sippy_account_cdr_records",
			"CDR records seen in the most recent poll window",
			[]string{"account"}, nil,
		),
		cdrCostDesc: prometheus.NewDesc(
			"sippy_account_cdr_cost",
			"Summed call cost over the most recent poll window",
			[]string{"account", "currency"}, nil,
		),
		cdrDurationDesc: prometheus.NewDesc(
			"sippy_account_cdr_duration_seconds",
			"Summed call duration over the most recent poll window",
			[]string{"account"}, nil,
		),
		cdrFailedDesc: prometheus.NewDesc(
			"sippy_account_cdr_failed_calls",
			"Calls with a non-zero result code in the most recent poll window",
			[]string{"account"}, nil,
		),
		lastPollDesc: prometheus.NewDesc(
			"sippy_exporter_last_poll_timestamp_seconds",
			"Unix time of the last successful switch poll",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"sippy_exporter_uptime_seconds",
			"Seconds since the exporter process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCallsDesc
	ch <- c.cdrRecordsDesc
	ch <- c.cdrCostDesc
	ch <- c.cdrDurationDesc
	ch <- c.cdrFailedDesc
	ch <- c.lastPollDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)

	snap, ok := c.provider.Snapshot()
	if !ok {
		return
	}
	account := strconv.Itoa(c.accountID)

	ch <- prometheus.MustNewConstMetric(
		c.activeCallsDesc, prometheus.GaugeValue,
		float64(snap.ActiveCalls), account,
	)
	ch <- prometheus.MustNewConstMetric(
		c.cdrRecordsDesc, prometheus.GaugeValue,
		float64(snap.CDRCount), account,
	)
	currency := snap.Currency
	if currency == "" {
		currency = "unknown"
	}
	ch <- prometheus.MustNewConstMetric(
		c.cdrCostDesc, prometheus.GaugeValue,
		snap.TotalCost, account, currency,
	)
	ch <- prometheus.MustNewConstMetric(
		c.cdrDurationDesc, prometheus.GaugeValue,
		snap.TotalDuration, account,
	)
	ch <- prometheus.MustNewConstMetric(
		c.cdrFailedDesc, prometheus.GaugeValue,
		float64(snap.FailedCalls), account,
	)
	ch <- prometheus.MustNewConstMetric(
		c.lastPollDesc, prometheus.GaugeValue,
		float64(snap.PolledAt.Unix()),
	)
}
