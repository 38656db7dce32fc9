// Package analysis provides trajectory diagnostics for learned fields.
//
// Phase portraits put a model rollout and the reference orbit side by
// side in (theta, omega) space; the FFT utilities estimate the dominant
// oscillation frequency so a learned field's period can be compared
// against the closed-form pendulum's.
package analysis
