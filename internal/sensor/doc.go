// Package sensor talks to the mmWave vital-signs radar: it parses the CLI
// profile, pushes it over the command port, and exposes the data port as a
// byte stream. Simulator stands in for the hardware.
package sensor
