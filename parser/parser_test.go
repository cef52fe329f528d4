package parser

import (
	"testing"

	"github.com/aluiziolira/bookwatch/models"
)

func TestRatingScore(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{name: "One", input: "One", expected: 1.0},
		{name: "Two", input: "Two", expected: 2.0},
		{name: "Three", input: "Three", expected: 3.0},
		{name: "Four", input: "Four", expected: 4.0},
		{name: "Five", input: "Five", expected: 5.0},
		{name: "lowercase", input: "three", expected: 3.0},
		{name: "padded", input: "  Four  ", expected: 4.0},
		{name: "unmapped", input: "Six", expected: 0.0},
		{name: "empty", input: "", expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RatingScore(tt.input); got != tt.expected {
				t.Errorf("RatingScore(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
		wantErr  bool
	}{
		{name: "with currency symbol", input: "£51.77", expected: 51.77},
		{name: "with whitespace", input: "  £10.50  ", expected: 10.50},
		{name: "already clean", input: "25.99", expected: 25.99},
		{name: "mojibake prefix", input: "Â£22.60", expected: 22.60},
		{name: "integer price", input: "£20", expected: 20},
		{name: "no number", input: "free", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePrice(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
		wantErr  bool
	}{
		{name: "availability text", input: "In stock (22 available)", expected: 22},
		{name: "bare number", input: "3", expected: 3},
		{name: "zero", input: "0 reviews", expected: 0},
		{name: "no number", input: "Out of stock", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("ParseCount(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidateBook(t *testing.T) {
	valid := func() *models.Book {
		b := &models.Book{
			Name:     "Test Book",
			Category: "Fiction",
		}
		b.Hash = b.ContentHash()
		return b
	}

	tests := []struct {
		name    string
		mutate  func(*models.Book)
		wantErr bool
	}{
		{name: "valid book", mutate: func(b *models.Book) {}},
		{name: "missing name", mutate: func(b *models.Book) { b.Name = "" }, wantErr: true},
		{name: "missing category", mutate: func(b *models.Book) { b.Category = " " }, wantErr: true},
		{name: "missing hash", mutate: func(b *models.Book) { b.Hash = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := valid()
			tt.mutate(book)
			err := ValidateBook(book)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBook() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := ValidateBook(nil); err == nil {
		t.Errorf("ValidateBook(nil) should fail")
	}
}
