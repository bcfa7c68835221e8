// Package chrome implements jquery.Target on a real browser page driven
// over the DevTools protocol with rod.
package chrome
