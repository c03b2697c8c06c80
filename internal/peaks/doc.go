// Package peaks finds extremum peaks in one channel of an averaged ERP
// waveform and defines the annotation record produced for each pick.
//
// Find is pure: it scans a time window for samples that strictly dominate
// both immediate neighbours and the mean of the three samples on each side,
// and returns the most extreme one. Record carries the wire encoding shared by
// the REDCap upload and the CSV export.
package peaks
