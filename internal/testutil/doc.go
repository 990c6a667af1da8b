// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing requests and collecting events.
// They are not intended for production usage.
package testutil
