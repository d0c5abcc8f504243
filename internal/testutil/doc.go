// Package testutil contains helper fakes and builders used across tests to
// reduce boilerplate when constructing catalog entries and scripting
// invocation outcomes. These helpers are intentionally minimal and avoid
// adding third‑party dependencies. They are not intended for production
// usage.
package testutil
