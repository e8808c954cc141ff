// Package script reads molecular dynamics input scripts into directives.
//
// The format is line oriented:
//
//   - one directive per line, tokens separated by whitespace
//   - '#' starts a comment that runs to the end of the line
//   - a trailing '&' continues the directive on the next line
//   - single or double quotes group a token containing whitespace or '#'
//
// The reader never reorders or rewrites arguments; interpreting them is the
// job of package engine.
package script
