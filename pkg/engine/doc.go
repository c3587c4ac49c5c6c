// Package engine is the boundary to the external document converters.
//
// Engines are blocking, CPU/GPU-heavy collaborators invoked as child
// processes: LibreOffice renders office documents to PDF, and
// AnalyzerCommand runs configurable analyzer commands (PDF to Markdown,
// image OCR) from an argv template with {input}, {output}, {output_dir}
// and {stem} placeholders. The pipeline only sees the Engine interface,
// so an analyzer can later become a linked library or an RPC service
// without scheduler changes.
//
// # Error Classification
//
// Failures are folded into EngineError with a fixed kind set:
// password-protected documents, accelerator out-of-memory, unsupported
// formats, permission problems, missing binaries, and timeouts. Classify
// prefers typed causes (context deadlines, exec lookup failures) over
// message heuristics, and every rendered message starts with a stable
// per-kind tag so downstream consumers can match on it.
//
// ClearCaches is called by the dispatcher after every conversion. For
// subprocess engines it is a release point only; accelerator memory is
// freed when the child exits.
package engine
