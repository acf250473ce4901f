package productmeta

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"dash suffix", "Chaise Design - MaBoutique", "Chaise Design"},
		{"pipe suffix", "Lampe LED | Maison & Co", "Lampe LED"},
		{"bullet suffix", "Tabouret • Atelier", "Tabouret"},
		{"first dash occurrence wins", "Table - Chêne massif - Boutique", "Table"},
		{"dash before pipe", "Sac | Cuir - Marque", "Sac"},
		{"hyphen without spaces is kept", "T-shirt col V", "T-shirt col V"},
		{"already clean", "Chaise Design", "Chaise Design"},
		{"whitespace collapsed", "  Chaise \n Design  ", "Chaise Design"},
		{"leading separator is not a cut point", " - Chaise", "- Chaise"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CleanTitle(tt.input)
			if result != tt.expected {
				t.Errorf("CleanTitle(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCleanTitleIdempotent(t *testing.T) {
	inputs := []string{
		"Chaise Design - MaBoutique",
		"Sac | Cuir - Marque",
		"A • B | C - D",
		"Plain title",
		" - Chaise",
	}

	for _, input := range inputs {
		once := CleanTitle(input)
		twice := CleanTitle(once)
		if once != twice {
			t.Errorf("CleanTitle not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestTitleFromURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"amazon canned label", "https://www.amazon.fr/dp/B08X6F1234", "Produit Amazon"},
		{"amazon subdomain", "https://smile.amazon.com/gp/product/B0000", "Produit Amazon"},
		{"longest segment humanized", "https://www.exemple.com/produit-super-cool-2024", "Produit Super Cool 2024"},
		{"picks longest segment", "https://shop.example/fr/cat/lampe_de_chevet/123", "Lampe De Chevet"},
		{"page extension dropped", "https://shop.example/p/table-basse.html", "Table Basse"},
		{"short segments fall back to domain", "https://www.exemple.com/fr/p/123", "Produit sur exemple.com"},
		{"root path falls back to domain", "https://boutique.example/", "Produit sur boutique.example"},
		{"no host", "not a url", "Produit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TitleFromURL(tt.url)
			if result != tt.expected {
				t.Errorf("TitleFromURL(%q) = %q, expected %q", tt.url, result, tt.expected)
			}
		})
	}
}

func TestTitleFromURLTruncates(t *testing.T) {
	long := "https://shop.example/" + strings.Repeat("canape-convertible-", 8) + "gris"

	result := TitleFromURL(long)
	if n := utf8.RuneCountInString(result); n > MaxURLTitleLength {
		t.Errorf("expected at most %d runes, got %d (%q)", MaxURLTitleLength, n, result)
	}
	if !strings.HasSuffix(result, "...") {
		t.Errorf("expected ellipsis, got %q", result)
	}
	if TitleFromURL(long) != result {
		t.Error("TitleFromURL should be deterministic")
	}
}
