// Package fixture generates random record batches: Size ids drawn uniformly
// from [0, Space), each named "item<n>". Draws may repeat within a batch.
package fixture
