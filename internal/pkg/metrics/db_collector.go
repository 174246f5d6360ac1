package metrics

import "github.com/jackc/pgx/v5/pgxpool"

// RecordDBPoolMetrics samples the pgx pool into the connection gauges. The
// app calls it on a fixed tick; pool.Stat is cheap enough for that cadence.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()

	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))
}
