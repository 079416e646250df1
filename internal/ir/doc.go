// Package ir defines the domain types shared by every bullion package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Every row carries its owning Scope (tenant, location); there is no
//     ambient session state anywhere in the core.
//   - Weights are grams. Aggregate arithmetic is rounded to 3 decimals after
//     each step (Round3) so cached totals cannot accumulate float drift.
//   - Names are NFC-normalized at the boundary (NormalizeName) so the same
//     label typed on two devices resolves to one row.
//   - All JSON tags use snake_case.
package ir
