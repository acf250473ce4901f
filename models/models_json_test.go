package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

// TestProductMetadataOmitsUnsetFields verifies that missing fields are left out of the JSON
func TestProductMetadataOmitsUnsetFields(t *testing.T) {
	empty := ProductMetadata{}

	jsonBytes, err := json.Marshal(empty)
	if err != nil {
		t.Fatalf("Failed to marshal empty metadata: %v", err)
	}

	if string(jsonBytes) != "{}" {
		t.Errorf("Expected {} for empty metadata, got %s", jsonBytes)
	}

	title := "Chaise Design"
	price := decimal.RequireFromString("49.99")
	full := ProductMetadata{Title: &title, Price: &price, Image: []byte{0xff, 0xd8}}

	jsonBytes, err = json.Marshal(full)
	if err != nil {
		t.Fatalf("Failed to marshal metadata: %v", err)
	}

	var unmarshaled map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &unmarshaled); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}

	for _, key := range []string{"title", "price", "image"} {
		if _, exists := unmarshaled[key]; !exists {
			t.Errorf("%s field is missing from JSON: %s", key, jsonBytes)
		}
	}

	if unmarshaled["price"] != "49.99" {
		t.Errorf("Expected price to serialize as \"49.99\", got %v", unmarshaled["price"])
	}
}

func TestProductMetadataHelpers(t *testing.T) {
	var nilMeta *ProductMetadata
	if nilMeta.HasTitle() || nilMeta.HasImage() {
		t.Error("nil metadata should report no title and no image")
	}

	blank := ""
	m := &ProductMetadata{Title: &blank}
	if m.HasTitle() {
		t.Error("empty title should not count as a title")
	}

	m.Image = []byte{1}
	if !m.HasImage() {
		t.Error("expected HasImage to be true")
	}
}
