package services

import (
	"math"
	"strings"
)

// FoodComponent is one item on the plate with the carbs it contributes.
// Carbs is nil when neither the model nor the lookup table knew a value.
type FoodComponent struct {
	Name  string   `json:"name"`
	Carbs *float64 `json:"carbs_g"`
}

// commonCarbs holds approximate carbs per serving in grams. Order matters:
// the first keyword contained in a component name wins, so compound names
// come before the words they contain.
var commonCarbs = []struct {
	keyword string
	carbs   float64
}{
	{"burger bun", 30}, {"булочка", 30}, {"bun", 30},
	{"beef patty", 0}, {"котлета", 0},
	{"lettuce", 1}, {"салат латук", 1},
	{"tomato", 1}, {"помидор", 1}, {"томат", 1},
	{"onion", 2}, {"лук", 2},
	{"cheese", 1}, {"сыр", 1},
	{"potato wedges", 40}, {"fries", 40}, {"картофель фри", 40}, {"картошка фри", 40},
	{"potato", 20}, {"картофель", 20}, {"картошка", 20},
	{"rice", 45}, {"рис", 45},
	{"pasta", 40}, {"макароны", 40}, {"паста", 40},
	{"bread", 15}, {"хлеб", 15},
	{"buckwheat", 30}, {"гречка", 30},
	{"apple", 20}, {"яблоко", 20},
	{"banana", 25}, {"банан", 25},
}

// lookupCarbs returns the table value for the first keyword found in name.
func lookupCarbs(name string) (float64, bool) {
	key := strings.ToLower(name)
	for _, c := range commonCarbs {
		if strings.Contains(key, c.keyword) {
			return c.carbs, true
		}
	}
	return 0, false
}

// estimateComponentCarbs keeps model supplied values, fills missing ones
// from the lookup table and returns the rounded sum. ok is false when no
// component carries a number.
func estimateComponentCarbs(components []FoodComponent) (total float64, ok bool) {
	for i := range components {
		c := &components[i]
		if c.Carbs != nil && (math.IsNaN(*c.Carbs) || *c.Carbs < 0) {
			c.Carbs = nil
		}
		if c.Carbs == nil {
			if v, found := lookupCarbs(c.Name); found {
				c.Carbs = &v
			}
		}
		if c.Carbs != nil {
			v := math.Round(*c.Carbs*10) / 10
			c.Carbs = &v
			total += v
			ok = true
		}
	}
	return math.Round(total*10) / 10, ok
}
