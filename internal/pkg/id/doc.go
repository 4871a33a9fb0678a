// Package id provides identifiers and content hashes for priceuq.
//
// This package generates:
//   - UUID v4 run and job identifiers
//   - BLAKE2b dataset fingerprints, stored with each run so identical
//     uploads can be recognised
//   - per-row generator seeds, so a stochastic function of a feature row
//     can be made a pure function of that row
//
// All functions are safe for concurrent use.
package id
