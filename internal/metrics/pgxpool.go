package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// poolStat is the subset of *pgxpool.Stat exported as gauges.
type poolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
	MaxConns() int32
}

// RegisterPoolMetrics exposes connection pool statistics as gauges.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool) error {
	return registerPoolMetrics(reg, func() poolStat { return pool.Stat() })
}

func registerPoolMetrics(reg prometheus.Registerer, stat func() poolStat) error {
	gauge := func(name, help string, value func(s poolStat) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(value(stat()))
		})
	}

	collectors := []prometheus.Collector{
		gauge("acquired_conns", "Connections currently acquired from the pool.", poolStat.AcquiredConns),
		gauge("idle_conns", "Idle connections in the pool.", poolStat.IdleConns),
		gauge("total_conns", "Total connections in the pool.", poolStat.TotalConns),
		gauge("max_conns", "Maximum size of the pool.", poolStat.MaxConns),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
