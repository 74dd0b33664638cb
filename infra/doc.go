// Package infra contains technical adapters such as the SQL record stores,
// model backends, result publishers and metrics exporters. These packages
// should depend only on the interfaces defined in the core packages.
package infra
