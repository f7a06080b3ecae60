package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"flightbus/internal/bus"
)

var (
	topicVersionDesc = prometheus.NewDesc(
		"flightbus_topic_version",
		"Number of publishes on a topic",
		[]string{"topic"}, nil,
	)
	topicNodesDesc = prometheus.NewDesc(
		"flightbus_topic_nodes",
		"Number of subscriber nodes attached to a topic",
		[]string{"topic"}, nil,
	)
)

type busCollector struct {
	bus *bus.Registry
}

func newBusCollector(b *bus.Registry) *busCollector {
	return &busCollector{bus: b}
}

func (c *busCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- topicVersionDesc
	ch <- topicNodesDesc
}

func (c *busCollector) Collect(ch chan<- prometheus.Metric) {
	for _, info := range c.bus.Topics() {
		ch <- prometheus.MustNewConstMetric(topicVersionDesc, prometheus.CounterValue, float64(info.Version), info.Name)
		ch <- prometheus.MustNewConstMetric(topicNodesDesc, prometheus.GaugeValue, float64(info.Nodes), info.Name)
	}
}
