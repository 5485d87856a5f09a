// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing panel configs and draining run
// event streams. These helpers are intentionally minimal and avoid adding
// third-party dependencies. They are not intended for production usage.
package testutil
