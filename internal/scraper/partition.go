package scraper

import "github.com/sells-group/philgeps-cli/internal/model"

// Partition deals items round-robin into n slices: item i goes to slice i%n.
// Every slice gets floor(len/n) or ceil(len/n) items. n below 1 is treated as 1.
func Partition(items []model.RecordSummary, n int) [][]model.RecordSummary {
	if n < 1 {
		n = 1
	}
	parts := make([][]model.RecordSummary, n)
	for i := range parts {
		parts[i] = make([]model.RecordSummary, 0, (len(items)+n-1)/n)
	}
	for i, it := range items {
		parts[i%n] = append(parts[i%n], it)
	}
	return parts
}
