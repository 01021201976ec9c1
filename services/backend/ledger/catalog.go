// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import "github.com/stratforge-ai/stratforge/services/backend/datatypes"

// Product is one purchasable item in the catalog.
type Product struct {
	ID      string
	Purpose datatypes.Purpose
}

// Catalog is the versioned product catalog used to classify billing
// events. Classification is strict: an event whose product ID is not in
// the catalog (and that carries no valid explicit purpose tag) is rejected
// as unclassified, never guessed from names or price points.
type Catalog struct {
	version  string
	products map[string]Product
}

// NewCatalog builds a catalog from a product list.
func NewCatalog(version string, products []Product) *Catalog {
	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &Catalog{version: version, products: byID}
}

// DefaultCatalog returns the current production catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog("2025-08", []Product{
		{ID: "sf_pro_monthly", Purpose: datatypes.PurposePro},
		{ID: "sf_elite_monthly", Purpose: datatypes.PurposeElite},
		{ID: "sf_plan_downgrade", Purpose: datatypes.PurposeFree},
		{ID: "sf_coin_pack", Purpose: datatypes.PurposeCoins},
	})
}

// Version identifies the catalog revision; recorded in audit entries so a
// rejected event can be re-judged against the catalog that rejected it.
func (c *Catalog) Version() string { return c.version }

// Lookup resolves a product ID.
func (c *Catalog) Lookup(productID string) (Product, bool) {
	p, ok := c.products[productID]
	return p, ok
}
