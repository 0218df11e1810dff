// Package types provides core types used across the streamflow pipeline.
// This package has ZERO dependencies on other streamflow packages to avoid
// circular imports. All other packages should import types from here.
package types
