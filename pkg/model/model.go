// Package model defines the core domain types for the relay.
package model
