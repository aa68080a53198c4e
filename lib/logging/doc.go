// Package logging wires zap into dragonboat's logger registry.
//
// Every dCtl package logs through dragonboat's logger.GetLogger("<name>") just
// like the raft internals do. Init replaces the default factory with a zap
// backed one, so raft, rpc and service logs share one format:
//
//	console  human readable (default)
//	json     one JSON object per line
//	logfmt   key=value pairs (github.com/jsternberg/zap-logfmt)
//
// Init must be called once at startup, before the first log line:
//
//	if err := logging.Init("debug", "logfmt"); err != nil {
//		return err
//	}
//	var log = logger.GetLogger("system")
//	log.Infof("created system %s", id)
package logging
