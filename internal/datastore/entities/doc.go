// Package entities defines the GORM models of the destination schema.
//
// Every table has a database-generated surrogate id. Legacy ids never appear
// here; the correspondence lives in the mapping stores.
package entities
