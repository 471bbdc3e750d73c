// Package ir provides the runtime value types shared by every TQL layer.
//
// This package imports nothing internal; all other internal packages may
// import it. It holds:
//   - Value, the sealed Scalar | RowSet result sum type
//   - Shape, the static result shape used by the resolver and compiler
//   - canonical JSON and domain-separated hashing for cache keys
//
// Key design constraints:
//   - RowSet cells are normalized to float64, string, bool or nil so a value
//     decoded from the cache is identical to a fresh one
//   - Cache keys are computed only from canonical JSON
package ir
