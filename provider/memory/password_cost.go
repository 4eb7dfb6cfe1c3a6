//go:build !race

package memory

func passwordHashCost() int {
	return 12
}
