package grid

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Splits is the fan-out of each grid axis per level
	Splits = 5
	// WorkingZoom is the cell level where editing happens
	WorkingZoom = 2
)

// zoomMapping gives the map zoom used to display each cell level
var zoomMapping = map[int]int{0: 5, 1: 8, 2: 12}

// MapZoom returns the map zoom for a cell level
func MapZoom(z int) int {
	if mz, ok := zoomMapping[z]; ok {
		return mz
	}
	return zoomMapping[WorkingZoom]
}

// Address identifies a cell in the grid
type Address struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// ParseID parses "{z}_{x}_{y}"
func ParseID(id string) (Address, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		return Address{}, fmt.Errorf("invalid cell id %q", id)
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return Address{}, fmt.Errorf("invalid cell id %q: %w", id, err)
		}
		vals[i] = v
	}
	a := Address{Z: vals[0], X: vals[1], Y: vals[2]}
	if !a.Valid() {
		return Address{}, fmt.Errorf("cell id %q out of range", id)
	}
	return a, nil
}

// ID returns the external cell id
func (a Address) ID() string {
	return fmt.Sprintf("%d_%d_%d", a.Z, a.X, a.Y)
}

// Valid reports whether the address exists in the grid
func (a Address) Valid() bool {
	if a.Z < 0 || a.Z > WorkingZoom {
		return false
	}
	n := span(a.Z)
	return a.X >= 0 && a.Y >= 0 && a.X < n && a.Y < n
}

// Parent returns the enclosing cell; level 0 has none
func (a Address) Parent() (Address, bool) {
	if a.Z == 0 {
		return Address{}, false
	}
	return Address{Z: a.Z - 1, X: floorDiv(a.X, Splits), Y: floorDiv(a.Y, Splits)}, true
}

// Child returns sub-cell (i, j) of a, with i along x and j along y
func (a Address) Child(i, j int) Address {
	return Address{Z: a.Z + 1, X: a.X*Splits + i, Y: a.Y*Splits + j}
}

// Children returns the 25 sub-cells, grouped by column
func (a Address) Children() []Address {
	out := make([]Address, 0, Splits*Splits)
	for i := 0; i < Splits; i++ {
		for j := 0; j < Splits; j++ {
			out = append(out, a.Child(i, j))
		}
	}
	return out
}

// span returns the number of cells per axis at level z
func span(z int) int {
	n := 1
	for i := 0; i < z; i++ {
		n *= Splits
	}
	return n
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
