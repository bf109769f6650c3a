package domain

import (
	"math/big"
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultTrolleyType is used for capacity configs that name no trolley class
const DefaultTrolleyType = "standard"

// MaxSuggestions caps the fill-up suggestions returned with an estimate
const MaxSuggestions = 5

// CapacityConfig says how many plants of one family and pot size fit on a
// shelf, and how many shelves a trolley carries
type CapacityConfig struct {
	Family            string `bson:"family" yaml:"family"`
	SizeID            string `bson:"sizeId" yaml:"sizeId"`
	SizeName          string `bson:"sizeName" yaml:"sizeName"`
	TrolleyType       string `bson:"trolleyType" yaml:"trolleyType"`
	UnitsPerShelf     int    `bson:"unitsPerShelf" yaml:"unitsPerShelf"`
	ShelvesPerTrolley int    `bson:"shelvesPerTrolley" yaml:"shelvesPerTrolley"`
}

func (c CapacityConfig) trolleyType() string {
	if c.TrolleyType == "" {
		return DefaultTrolleyType
	}
	return c.TrolleyType
}

func (c CapacityConfig) usable() bool {
	return c.UnitsPerShelf > 0 && c.ShelvesPerTrolley > 0
}

func (c CapacityConfig) perTrolley() int64 {
	return int64(c.UnitsPerShelf) * int64(c.ShelvesPerTrolley)
}

// EstimateLine is one order line as seen by the estimator
type EstimateLine struct {
	SizeID   string
	Family   string
	Quantity int
}

// LineEstimate is the contribution of one matched line
type LineEstimate struct {
	SizeID          string
	Family          string
	TrolleyType     string
	Quantity        int
	ShelfFraction   float64
	TrolleyFraction float64
}

// TrolleyGroup sums the lines sharing one physical trolley class
type TrolleyGroup struct {
	TrolleyType string
	Trolleys    float64
}

// Suggestion is how many more units of a size would fit in the space left
// on the last trolley
type Suggestion struct {
	SizeID      string
	SizeName    string
	Family      string
	UnitsCanFit int
}

// TrolleyEstimate is the transport capacity an order needs
type TrolleyEstimate struct {
	TotalTrolleys        float64
	WholeTrolleys        int
	DisplayValue         string
	CurrentFillPercent   int
	LinesWithoutQuantity int
	Groups               []TrolleyGroup
	Lines                []LineEstimate
	Suggestions          []Suggestion
}

type configKey struct {
	family string
	sizeID string
}

// Estimator computes trolley estimates against a fixed capacity table
type Estimator struct {
	configs map[configKey]CapacityConfig
	ordered []CapacityConfig
}

// NewEstimator builds an estimator over configs. Later duplicates of a
// (family, size) key are ignored.
func NewEstimator(configs []CapacityConfig) *Estimator {
	e := &Estimator{configs: make(map[configKey]CapacityConfig, len(configs))}
	for _, c := range configs {
		k := configKey{family: c.Family, sizeID: c.SizeID}
		if _, exists := e.configs[k]; exists {
			continue
		}
		e.configs[k] = c
		e.ordered = append(e.ordered, c)
	}
	return e
}

type matchedLine struct {
	line     EstimateLine
	config   CapacityConfig
	fraction *big.Rat
}

// Estimate computes the trolleys needed for lines. Lines whose (family, size)
// has no usable capacity config count towards LinesWithoutQuantity and add
// nothing. Fractions are summed as exact rationals, so the result does not
// depend on the order of lines and whole totals stay whole.
func (e *Estimator) Estimate(lines []EstimateLine) TrolleyEstimate {
	est := TrolleyEstimate{}

	onOrder := make(map[configKey]bool, len(lines))
	matched := make([]matchedLine, 0, len(lines))
	for _, l := range lines {
		key := configKey{family: l.Family, sizeID: l.SizeID}
		onOrder[key] = true
		cfg, ok := e.configs[key]
		if !ok || !cfg.usable() {
			est.LinesWithoutQuantity++
			continue
		}
		matched = append(matched, matchedLine{
			line:     l,
			config:   cfg,
			fraction: big.NewRat(int64(l.Quantity), cfg.perTrolley()),
		})
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.config.trolleyType() != b.config.trolleyType() {
			return a.config.trolleyType() < b.config.trolleyType()
		}
		if a.line.Family != b.line.Family {
			return a.line.Family < b.line.Family
		}
		if a.line.SizeID != b.line.SizeID {
			return a.line.SizeID < b.line.SizeID
		}
		return a.line.Quantity < b.line.Quantity
	})

	total := new(big.Rat)
	var groupTotals []*big.Rat
	for i, m := range matched {
		tt := m.config.trolleyType()
		if i == 0 || matched[i-1].config.trolleyType() != tt {
			est.Groups = append(est.Groups, TrolleyGroup{TrolleyType: tt})
			groupTotals = append(groupTotals, new(big.Rat))
		}
		groupTotals[len(groupTotals)-1].Add(groupTotals[len(groupTotals)-1], m.fraction)
		total.Add(total, m.fraction)

		shelves, _ := big.NewRat(int64(m.line.Quantity), int64(m.config.UnitsPerShelf)).Float64()
		trolleys, _ := m.fraction.Float64()
		est.Lines = append(est.Lines, LineEstimate{
			SizeID:          m.line.SizeID,
			Family:          m.line.Family,
			TrolleyType:     tt,
			Quantity:        m.line.Quantity,
			ShelfFraction:   shelves,
			TrolleyFraction: trolleys,
		})
	}

	for i := range est.Groups {
		est.Groups[i].Trolleys, _ = groupTotals[i].Float64()
	}

	whole := new(big.Int).Quo(total.Num(), total.Denom())
	fractional := new(big.Rat).Sub(total, new(big.Rat).SetInt(whole))
	isWhole := fractional.Sign() == 0
	full := isWhole && total.Sign() > 0

	est.TotalTrolleys, _ = total.Float64()
	est.WholeTrolleys = int(whole.Int64())
	if !isWhole {
		est.WholeTrolleys++
	}

	if isWhole {
		est.DisplayValue = whole.String()
	} else {
		est.DisplayValue = decimal.NewFromBigRat(total, 1).StringFixed(1)
	}

	if full {
		est.CurrentFillPercent = 100
	} else {
		percent := new(big.Rat).Mul(fractional, big.NewRat(100, 1))
		est.CurrentFillPercent = int(decimal.NewFromBigRat(percent, 0).IntPart())
	}

	remaining := new(big.Rat).Sub(big.NewRat(1, 1), fractional)
	if full {
		remaining.SetInt64(0)
	}
	est.Suggestions = e.suggest(remaining, onOrder)

	return est
}

// suggest lists the other known sizes that fit in the remaining share of a
// trolley. Sizes already on the order are left out.
func (e *Estimator) suggest(remaining *big.Rat, exclude map[configKey]bool) []Suggestion {
	if remaining.Sign() <= 0 {
		return nil
	}

	var suggestions []Suggestion
	for _, c := range e.ordered {
		if !c.usable() || exclude[configKey{family: c.Family, sizeID: c.SizeID}] {
			continue
		}
		space := new(big.Rat).Mul(remaining, big.NewRat(c.perTrolley(), 1))
		units := int(new(big.Int).Quo(space.Num(), space.Denom()).Int64())
		if units <= 0 {
			continue
		}
		name := c.SizeName
		if name == "" {
			name = c.SizeID
		}
		suggestions = append(suggestions, Suggestion{
			SizeID:      c.SizeID,
			SizeName:    name,
			Family:      c.Family,
			UnitsCanFit: units,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].UnitsCanFit != suggestions[j].UnitsCanFit {
			return suggestions[i].UnitsCanFit > suggestions[j].UnitsCanFit
		}
		if suggestions[i].SizeName != suggestions[j].SizeName {
			return suggestions[i].SizeName < suggestions[j].SizeName
		}
		return suggestions[i].Family < suggestions[j].Family
	})

	if len(suggestions) > MaxSuggestions {
		suggestions = suggestions[:MaxSuggestions]
	}
	return suggestions
}
