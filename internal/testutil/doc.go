// Package testutil contains helper nodes and observers used across tests to
// reduce boilerplate when constructing graphs and asserting scheduler
// behavior. These helpers are intentionally minimal and avoid adding
// third‑party dependencies. They are not intended for production usage.
package testutil
