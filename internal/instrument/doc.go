// Package instrument wraps orchestration calls with an explicit trace: the
// call is timed and a structured Record (operation, session, duration,
// status, error) is logged and handed to any registered sinks.
//
// Callers wrap the boundary they care about with Tracer.Trace; nothing is
// instrumented implicitly.
package instrument
