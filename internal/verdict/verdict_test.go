package verdict

import "testing"

func TestNormalize_SynonymSets(t *testing.T) {
	cases := []struct {
		raw  string
		want Verdict
	}{
		{"nourish", Nourish},
		{"Beneficial", Nourish},
		{"NURTURE", Nourish},
		{"promote", Nourish},
		{"show", Show},
		{"allow", Show},
		{"Approve", Show},
		{"keep", Show},
		{"display", Show},
		{"visible", Show},
		{"distill", Distill},
		{"rewrite", Distill},
		{"Summarize", Distill},
		{"filter", Filter},
		{"hide", Filter},
		{"block", Filter},
		{"  suppress  ", Filter},
	}
	for _, c := range cases {
		if got := Normalize(c.raw); got != c.want {
			t.Errorf("Normalize(%q) = %s, want %s", c.raw, got, c.want)
		}
	}
}

func TestNormalize_UnknownFailsClosed(t *testing.T) {
	for _, raw := range []string{"", "maybe", "garbage", "pending", "unclassified", "SHOWish"} {
		if got := Normalize(raw); got != Filter {
			t.Errorf("Normalize(%q) = %s, want filter", raw, got)
		}
	}
}

func TestPriorityOrdering(t *testing.T) {
	order := []Verdict{Nourish, Show, Distill, Filter, Pending}
	for i := 1; i < len(order); i++ {
		if Priority(order[i-1]) >= Priority(order[i]) {
			t.Fatalf("priority of %s must sort before %s", order[i-1], order[i])
		}
	}
}

func TestVisibleAndTerminal(t *testing.T) {
	if Pending.Terminal() {
		t.Error("pending must not be terminal")
	}
	for _, v := range []Verdict{Filter, Pending, Unclassified} {
		if v.Visible() {
			t.Errorf("%s must not be visible", v)
		}
	}
	for _, v := range []Verdict{Nourish, Show, Distill} {
		if !v.Visible() {
			t.Errorf("%s must be visible", v)
		}
		if !v.Terminal() {
			t.Errorf("%s must be terminal", v)
		}
	}
}
