package extract

import "testing"

func TestScanJSONLD_ProductObject(t *testing.T) {
	blocks := []string{`{
		"@context": "https://schema.org",
		"@type": "Product",
		"name": "Wool Socks",
		"image": "https://img.example/socks.png",
		"offers": {"@type": "Offer", "price": 12.5, "priceCurrency": "GBP"}
	}`}

	got := scanJSONLD(blocks)
	if got.name != "Wool Socks" {
		t.Errorf("name = %q", got.name)
	}
	if got.image != "https://img.example/socks.png" {
		t.Errorf("image = %q", got.image)
	}
	if got.price != "12.5" {
		t.Errorf("price = %q, want bare number rendered as string", got.price)
	}
	if got.currency != "GBP" {
		t.Errorf("currency = %q", got.currency)
	}
}

// offers may be a list; the first offer wins.
func TestScanJSONLD_OffersList(t *testing.T) {
	blocks := []string{`{
		"@type": "Product",
		"name": "Widget",
		"offers": [
			{"@type": "Offer", "price": "19.99", "priceCurrency": "USD"},
			{"@type": "Offer", "price": "24.99", "priceCurrency": "USD"}
		]
	}`}

	got := scanJSONLD(blocks)
	if got.price != "19.99" {
		t.Errorf("price = %q, want the first offer", got.price)
	}
}

func TestScanJSONLD_GraphNesting(t *testing.T) {
	blocks := []string{`{
		"@context": "https://schema.org",
		"@graph": [
			{"@type": "WebPage", "name": "Some Page"},
			{"@type": "Product", "name": "Nested Product", "offers": {"price": "7"}}
		]
	}`}

	got := scanJSONLD(blocks)
	if got.name != "Nested Product" {
		t.Errorf("name = %q, want the product inside @graph", got.name)
	}
	if got.price != "7" {
		t.Errorf("price = %q", got.price)
	}
}

func TestScanJSONLD_TypeList(t *testing.T) {
	blocks := []string{`{"@type": ["Thing", "Product"], "name": "Multi Type", "price": "3"}`}

	got := scanJSONLD(blocks)
	if got.name != "Multi Type" || got.price != "3" {
		t.Errorf("got %+v, want the multi-typed node recognized", got)
	}
}

func TestScanJSONLD_MalformedBlockSkipped(t *testing.T) {
	blocks := []string{
		`{not json at all`,
		`{"@type": "Product", "name": "Survivor", "price": "5"}`,
	}

	got := scanJSONLD(blocks)
	if got.name != "Survivor" {
		t.Errorf("name = %q, want the block after the malformed one", got.name)
	}
}

func TestScanJSONLD_ImageList(t *testing.T) {
	blocks := []string{`{"@type": "Product", "name": "Pics", "image": ["https://img.example/a.png", "https://img.example/b.png"]}`}

	got := scanJSONLD(blocks)
	if got.image != "https://img.example/a.png" {
		t.Errorf("image = %q, want the first of the list", got.image)
	}
}

func TestScanJSONLD_FirstMatchSticks(t *testing.T) {
	blocks := []string{
		`{"@type": "Product", "name": "First", "price": "1"}`,
		`{"@type": "Product", "name": "Second", "price": "2", "image": "https://img.example/x.png", "priceCurrency": "USD"}`,
	}

	got := scanJSONLD(blocks)
	if got.name != "First" || got.price != "1" {
		t.Errorf("got name=%q price=%q, want the first block's values kept", got.name, got.price)
	}
	// Fields the first block lacked are still filled by the second.
	if got.image != "https://img.example/x.png" {
		t.Errorf("image = %q, want filled from the second block", got.image)
	}
}

func TestScanJSONLD_NoProduct(t *testing.T) {
	blocks := []string{`{"@type": "Article", "headline": "News"}`}

	got := scanJSONLD(blocks)
	if got.name != "" || got.price != "" {
		t.Errorf("got %+v, want nothing from a non-product block", got)
	}
}
