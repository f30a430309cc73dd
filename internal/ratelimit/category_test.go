package ratelimit

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCategoryOrdinals(t *testing.T) {
	tests := []struct {
		Category
		want uint
	}{
		{CategoryAll, 0},
		{CategoryDefault, 1},
		{CategoryError, 2},
		{CategorySession, 3},
		{CategoryTransaction, 4},
		{CategoryAttachment, 5},
		{CategoryUserFeedback, 6},
		{CategoryUnknown, 7},
	}
	for _, tt := range tests {
		if got := uint(tt.Category); got != tt.want {
			t.Errorf("%s: got ordinal %d, want %d", tt.Category, got, tt.want)
		}
	}
}

func TestCategoryLabel(t *testing.T) {
	tests := []struct {
		Category
		want string
	}{
		{CategoryAll, ""},
		{CategoryDefault, "default"},
		{CategoryError, "error"},
		{CategorySession, "session"},
		{CategoryTransaction, "transaction"},
		{CategoryAttachment, "attachment"},
		{CategoryUserFeedback, "user_report"},
		{CategoryUnknown, "unkown"},
		{Category(42), "unkown"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.Category.String(), func(t *testing.T) {
			got := tt.Category.Label()
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// The relay expects the misspelled token, it must never be "fixed".
func TestCategoryUnknownLabelIsMisspelled(t *testing.T) {
	if got := CategoryUnknown.Label(); got != "unkown" {
		t.Fatalf("got %q, want %q", got, "unkown")
	}
	if got := CategoryUserFeedback.Label(); got != "user_report" {
		t.Fatalf("got %q, want %q", got, "user_report")
	}
}

func TestCategoryLabelsAreUnique(t *testing.T) {
	seen := make(map[string]Category)
	for _, c := range Categories() {
		if other, ok := seen[c.Label()]; ok {
			t.Errorf("%s and %s share label %q", c, other, c.Label())
		}
		seen[c.Label()] = c
	}
	if len(seen) != 8 {
		t.Errorf("got %d labels, want 8", len(seen))
	}
}

func TestCategoriesTableInLockStep(t *testing.T) {
	if len(categoryLabels) != len(categoryNames) {
		t.Fatalf("label table has %d entries, name table has %d", len(categoryLabels), len(categoryNames))
	}
	want := []Category{
		CategoryAll,
		CategoryDefault,
		CategoryError,
		CategorySession,
		CategoryTransaction,
		CategoryAttachment,
		CategoryUserFeedback,
		CategoryUnknown,
	}
	if diff := cmp.Diff(want, Categories()); diff != "" {
		t.Errorf("Categories() mismatch (-want +got):\n%s", diff)
	}

	cs := Categories()
	cs[0] = CategoryError
	if CategoryAll.Label() != "" || Categories()[0] != CategoryAll {
		t.Error("mutating the returned slice must not affect the table")
	}
}

func TestCategoryString(t *testing.T) {
	tests := []struct {
		Category
		want string
	}{
		{CategoryAll, "CategoryAll"},
		{CategoryError, "CategoryError"},
		{CategoryTransaction, "CategoryTransaction"},
		{CategoryUserFeedback, "CategoryUserFeedback"},
		{CategoryUnknown, "CategoryUnknown"},
		{Category(99), "CategoryUnknown"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			got := tt.Category.String()
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input string
		want  Category
	}{
		{"", CategoryAll},
		{"default", CategoryDefault},
		{"error", CategoryError},
		{"ERROR", CategoryError},
		{"Session", CategorySession},
		{"transaction", CategoryTransaction},
		{"attachment", CategoryAttachment},
		{"user_report", CategoryUserFeedback},
		{"unkown", CategoryUnknown},
		{"unknown", CategoryUnknown},
		{"security", CategoryUnknown},
		{"user_feedback", CategoryUnknown},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseCategory(tt.input); got != tt.want {
				t.Errorf("ParseCategory(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseCategoryRoundTrip(t *testing.T) {
	for _, c := range Categories() {
		if got := ParseCategory(c.Label()); got != c {
			t.Errorf("ParseCategory(%q) = %s, want %s", c.Label(), got, c)
		}
	}
}

func TestCategoryJSON(t *testing.T) {
	type payload struct {
		Category Category `json:"category"`
	}

	b, err := json.Marshal(payload{Category: CategoryUserFeedback})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), `{"category":"user_report"}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	var p payload
	if err := json.Unmarshal([]byte(`{"category":"unkown"}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Category != CategoryUnknown {
		t.Errorf("got %s, want %s", p.Category, CategoryUnknown)
	}

	counts := map[Category]int{CategoryError: 1, CategorySession: 2}
	b, err = json.Marshal(counts)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), `{"error":1,"session":2}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCategoryPriority(t *testing.T) {
	tests := []struct {
		Category
		want Priority
	}{
		{CategoryError, PriorityCritical},
		{CategorySession, PriorityHigh},
		{CategoryUserFeedback, PriorityHigh},
		{CategoryDefault, PriorityMedium},
		{CategoryUnknown, PriorityMedium},
		{CategoryTransaction, PriorityLow},
		{CategoryAttachment, PriorityLowest},
	}
	for _, tt := range tests {
		if got := tt.Category.Priority(); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.Category, got, tt.want)
		}
	}
}
