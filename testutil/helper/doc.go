// Package helper provides test doubles shared by the asofreads test suites:
// spies for the dependency-free Logger, MetricsCollector and TracingCollector
// interfaces, recording every call for assertions.
package helper
