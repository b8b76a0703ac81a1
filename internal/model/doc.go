// Package model provides the definition types shared by every polyref package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - Target ids are always string-encoded; integer-valued ids are derived
//     with IsNumericID, never by parsing arbitrary numeric syntax
//   - Entity type ids are canonical (NFC, lower-case) everywhere they are
//     compared; use CanonicalTypeID at every boundary
//   - Column and table names produced here are persisted schema artifacts and
//     must stay stable across releases
package model
