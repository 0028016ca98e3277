// Package logx configures sigrelay's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured and size-rotated
//   - Level and sinks swappable at runtime via Service.Apply
package logx
