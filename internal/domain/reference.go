package domain

// Haulier is a carrier running deliveries
type Haulier struct {
	HaulierID       string `bson:"haulierId" yaml:"haulierId"`
	Name            string `bson:"name" yaml:"name"`
	DefaultCapacity int    `bson:"defaultCapacity" yaml:"defaultCapacity"` // trolleys
}

// Vehicle belongs to a haulier. Capacity overrides the haulier default.
type Vehicle struct {
	VehicleID    string `bson:"vehicleId" yaml:"vehicleId"`
	HaulierID    string `bson:"haulierId" yaml:"haulierId"`
	Registration string `bson:"registration" yaml:"registration"`
	Capacity     *int   `bson:"capacity,omitempty" yaml:"capacity,omitempty"`
}

// Size is a pot or container size. UnitsPerShelf is the fallback shelf
// quantity for capacity configs that leave it unset.
type Size struct {
	SizeID        string `bson:"sizeId" yaml:"sizeId"`
	Name          string `bson:"name" yaml:"name"`
	UnitsPerShelf int    `bson:"unitsPerShelf" yaml:"unitsPerShelf"`
}
