package ir

// EntryType is the provenance tag recorded on every item.
type EntryType string

const (
	EntryManual        EntryType = "manual"
	EntryImport        EntryType = "import"
	EntryPurchaseOrder EntryType = "purchase_order"
)

// ValidEntryTypes defines allowed entry types.
var ValidEntryTypes = map[EntryType]bool{
	EntryManual:        true,
	EntryImport:        true,
	EntryPurchaseOrder: true,
}

// Purity is the metal fineness grade of an item.
type Purity string

const (
	Purity24K Purity = "24K"
	Purity22K Purity = "22K"
	Purity20K Purity = "20K"
	Purity18K Purity = "18K"
	Purity14K Purity = "14K"
	Purity999 Purity = "999"
	Purity925 Purity = "925"
)

// purityFraction maps each grade to its pure-metal fraction.
var purityFraction = map[Purity]float64{
	Purity24K: 0.999,
	Purity22K: 0.916,
	Purity20K: 0.833,
	Purity18K: 0.750,
	Purity14K: 0.585,
	Purity999: 0.999,
	Purity925: 0.925,
}

// Valid reports whether p is a known grade.
func (p Purity) Valid() bool {
	_, ok := purityFraction[p]
	return ok
}

// Fraction returns the pure-metal fraction for p, or 0 if unknown.
func (p Purity) Fraction() float64 {
	return purityFraction[p]
}

// FineFromNet derives fine weight from net weight for grade p.
func (p Purity) FineFromNet(net float64) float64 {
	return Round3(net * p.Fraction())
}

// ChargeType is how the making charge on an item is computed.
type ChargeType string

const (
	ChargePercentage ChargeType = "percentage"
	ChargePerGram    ChargeType = "per_gram"
	ChargePerPiece   ChargeType = "per_piece"
)

// ValidChargeTypes defines allowed charge types.
var ValidChargeTypes = map[ChargeType]bool{
	ChargePercentage: true,
	ChargePerGram:    true,
	ChargePerPiece:   true,
}
