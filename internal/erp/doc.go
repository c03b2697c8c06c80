// Package erp loads averaged ERP recordings exported as JSON
// ({times, chans, chanlocs, bins}) and lists the recordings in a data
// directory.
package erp
