// Package distance provides the vector distance metrics and scalar math used
// by the store backends when scoring happens in-process.
//
// Scores follow a single convention across the module: higher is better.
// Cosine and dot product are similarities already; L2 is negated so that the
// nearest vector still has the largest score.
package distance
