// Package convert routes conversion tasks to engine chains.
//
// The Dispatcher maps each task type onto the office renderer, the PDF
// analyzer, the OCR analyzer, or a composition (office_to_markdown runs
// the renderer into workspace scratch space, then the analyzer).
// Batch types walk a directory, optionally recursively and filtered by
// a filename regex, dispatch the matching single conversion per file
// while preserving relative paths, and aggregate counts; a failed file
// never aborts the batch. Engine caches are cleared after every
// conversion, successful or not.
//
// Conversions are blocking CPU/GPU work. Convert is called from
// dedicated conversion workers only, never from a coordinator
// goroutine.
package convert
