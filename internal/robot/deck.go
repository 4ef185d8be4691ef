package robot

import "fmt"

// Deck geometry, mm. Slot columns A-E run along X and rows 1-3 along Y.
const (
	slotOriginX    = 10.0
	slotOriginY    = 10.0
	slotPitchX     = 96.25
	slotPitchY     = 133.5
	slotColumns    = 5
	slotRows       = 3
	slotColumnBase = 'A'
)

// slotNames lists slots in tracking order: A1, A2, A3, B1, ...
var slotNames = func() []string {
	names := make([]string, 0, slotColumns*slotRows)
	for c := 0; c < slotColumns; c++ {
		for row := 1; row <= slotRows; row++ {
			names = append(names, fmt.Sprintf("%c%d", slotColumnBase+c, row))
		}
	}
	return names
}()

// mountOffsets positions each pipette mount relative to the head.
var mountOffsets = map[string][3]float64{
	"a": {0, 0, 0},
	"b": {0, 0, 0},
}

// SlotNames returns every slot name in deck order.
func SlotNames() []string {
	return append([]string(nil), slotNames...)
}

// SlotOffset returns the position of a slot relative to the deck. Unknown
// names yield the deck origin.
func SlotOffset(name string) (x, y, z float64) {
	i := slotIndex(name)
	if i < 0 {
		return 0, 0, 0
	}
	col, row := i/slotRows, i%slotRows
	return slotOriginX + float64(col)*slotPitchX, slotOriginY + float64(row)*slotPitchY, 0
}

func slotIndex(name string) int {
	for i, n := range slotNames {
		if n == name {
			return i
		}
	}
	return -1
}
