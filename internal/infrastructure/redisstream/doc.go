// Package redisstream publishes accepted device events to a Redis stream
// (XADD with MAXLEN trimming) for downstream consumers such as alerting
// or aggregation workers.
package redisstream
