// Package testutil provides testing utilities for vecstore backends.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded random vector generator and an exact ranking
// helper that serves as ground truth for search assertions.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vec := make([]float32, 128)
//	rng.FillUniform(vec)      // uniform [0, 1)
//	emb := rng.UnitVector(128) // L2-normalized
//
// # Exact Ranking (Ground Truth)
//
//	keys := testutil.TopKeys(distance.MetricCosine, query, vectors, k)
package testutil
