package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tokshop/api/internal/pricing"
)

// Errors returned by line normalization.
var (
	ErrLineNoProduct   = errors.New("line has no resolvable product")
	ErrInvalidProduct  = errors.New("invalid product id")
	ErrInvalidQuantity = errors.New("quantity must be > 0")
)

// CartLine is the single normalized input shape for a cart line. The HTTP
// layer owns the adapter from wire payloads (current and legacy field names)
// to this type; the core never branches on field-name variants.
type CartLine struct {
	ProductID string
	Title     string
	Sku       string
	UnitPrice *int64 // client-declared override, minor units
	Quantity  int32  // 0 means "not given", defaults to 1
	Variant   *CartVariant
}

// CartVariant is an explicit variant hint on a cart line.
type CartVariant struct {
	Sku   string
	Attrs map[string]string
}

// NormalizedLine is a cart line reconciled against catalog data with the
// pricing policy applied. It maps one-to-one onto a persisted order line.
type NormalizedLine struct {
	ProductID    uuid.UUID
	Title        string
	Sku          string
	UnitPrice    int64
	Quantity     int32
	VariantSku   string
	VariantAttrs map[string]string
	Subtotal     int64
}

// NormalizeLines reconciles client-submitted cart lines against the catalog.
// Unit price precedence: client override, then catalog sale price, then list
// price, then zero. Variant SKU precedence: explicit variant hint, then the
// line's flat SKU, then the product's first variant. Returns the normalized
// lines and the items subtotal.
func NormalizeLines(ctx context.Context, catalog CatalogReader, lines []CartLine, discountPercent int64) ([]NormalizedLine, int64, error) {
	var ids []uuid.UUID
	for _, l := range lines {
		if l.ProductID == "" {
			continue
		}
		id, err := uuid.Parse(l.ProductID)
		if err != nil {
			continue // reported per-line below
		}
		ids = append(ids, id)
	}

	found, err := catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve products: %w", err)
	}
	byID := make(map[uuid.UUID]CatalogProduct, len(found))
	for _, cp := range found {
		byID[cp.Product.ID] = cp
	}

	normalized := make([]NormalizedLine, 0, len(lines))
	var itemsTotal int64

	for i, l := range lines {
		if l.ProductID == "" {
			return nil, 0, fmt.Errorf("line[%d]: %w", i, ErrLineNoProduct)
		}
		productID, err := uuid.Parse(l.ProductID)
		if err != nil {
			return nil, 0, fmt.Errorf("line[%d]: %w", i, ErrInvalidProduct)
		}

		qty := l.Quantity
		if qty == 0 {
			qty = 1
		}
		if qty < 0 {
			return nil, 0, fmt.Errorf("line[%d]: %w", i, ErrInvalidQuantity)
		}

		cp, inCatalog := byID[productID]

		raw := int64(0)
		switch {
		case l.UnitPrice != nil:
			raw = *l.UnitPrice
		case inCatalog && cp.Product.SalePrice.Valid:
			raw = cp.Product.SalePrice.Int64
		case inCatalog:
			raw = cp.Product.ListPrice
		}

		unit := pricing.Unit(raw, discountPercent)

		variantSku := ""
		var attrs map[string]string
		if l.Variant != nil {
			variantSku = l.Variant.Sku
			attrs = l.Variant.Attrs
		}
		if variantSku == "" {
			variantSku = l.Sku
		}
		if inCatalog && len(cp.Variants) > 0 {
			first := cp.Variants[0]
			if variantSku == "" {
				variantSku = first.Sku
			}
			if attrs == nil {
				attrs = first.Attrs
			}
		}

		title := l.Title
		if title == "" && inCatalog {
			title = cp.Product.Title
		}

		sku := variantSku
		if sku == "" && inCatalog {
			sku = cp.Product.Sku
		}

		subtotal := pricing.Subtotal(unit, qty)
		itemsTotal += subtotal

		normalized = append(normalized, NormalizedLine{
			ProductID:    productID,
			Title:        title,
			Sku:          sku,
			UnitPrice:    unit,
			Quantity:     qty,
			VariantSku:   variantSku,
			VariantAttrs: attrs,
			Subtotal:     subtotal,
		})
	}

	return normalized, itemsTotal, nil
}
