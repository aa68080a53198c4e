// Package audit keeps the activity log of the control plane.
//
// Services report what happened ("pool.create", "conf.create_system", ...)
// through a Sink. The default Sink, Log, writes every event as JSON into a
// db.KVDB (a bolt file or memory) keyed by system and time. WriteCSV renders
// events for the export_activity_log method.
package audit
