// Package aggregates owns transaction boundaries for writes that span
// several repositories.
package aggregates
