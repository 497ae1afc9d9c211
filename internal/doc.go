// Package internal holds token generation, device fingerprinting, and risk
// scoring helpers shared by the engine. Everything here is pure: no I/O, no
// imports of sibling packages.
package internal
