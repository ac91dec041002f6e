package enums

// OrderType carries the warranty policy attached to a sale.
type OrderType string

const (
	OrderTypeWarranty   OrderType = "warranty"
	OrderTypeNoWarranty OrderType = "no_warranty"
)

// HasWarranty reports whether the type still owes recovery coverage. Unknown
// types default to covered; only an explicit no_warranty opts a sale out.
func (t OrderType) HasWarranty() bool {
	return t != OrderTypeNoWarranty
}
