// Package version carries the build identity printed in the startup
// banner and reported in IINF's VE token.
package version

// Vers is overridden at build time via -ldflags "-X ... =...".
var Vers = "adchub-dev"
