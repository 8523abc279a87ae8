package model

// Dish is the catalog read model used to snapshot line-item prices at
// submission time. The engine never stores dishes.
type Dish struct {
	ID        string
	Name      string
	UnitPrice float64
}
