// Package logging provides structured logging for the Synapse core.
//
// It wraps log/slog with a JSON handler and adds persistent context
// attributes so that a chain of related events can be followed through the
// log after the fact: every component tags its logger, and the dispatcher
// adds the kind and correlation id of the envelope it is delivering.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/synapse", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithComponent("scheduler").Debug("tick drained", "count", 3)
//
// An empty directory logs to stderr. [NopLogger] discards everything and is
// what tests and library callers without a logger get.
//
// # Context Attributes
//
//	log := logger.WithComponent("monitor").WithSubject("u1").WithCorrelation(id)
//	log.Info("action scheduled", "rule", "attention")
//
// produces
//
//	{"time":"...","level":"INFO","msg":"action scheduled","component":"monitor","subject_id":"u1","correlation_id":"...","rule":"attention"}
//
// # Log Rotation
//
// [NewLoggerWithRotation] writes through a [RotatingWriter]. Rotated files are
// named synapse.log.1 (newest) through synapse.log.N, gzip-compressed to
// synapse.log.N.gz when enabled.
//
// # Aggregation
//
// [AggregateLogs] reads the active file and its backups, [FilterLogs] narrows
// the result (level, component, kind, correlation id, subject, time window),
// and [WriteLogEntries] renders it as json, text, or csv. The synapse logs
// command is built on these three functions.
package logging
