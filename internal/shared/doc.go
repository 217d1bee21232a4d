// Package shared holds utilities used across the CallPulse codebase that
// belong to no single domain layer.
//
// The testutil subpackage captures structured log output for assertions in
// tests. Nothing here may depend on other internal packages.
package shared
