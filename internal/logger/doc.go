// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger writing console entries to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - convenience functions (InfoKV, ErrorKV, etc.).
//
// Services accept a context and extract the logger from it, so a command
// names its logger once and everything below inherits the scope.
package logger
