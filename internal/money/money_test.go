package money

import "testing"

func TestRoundDownStep(t *testing.T) {
	cases := []struct {
		amount, step, want string
	}{
		{"0.0238", "0.001", "0.023"},
		{"0.02", "0.001", "0.020"},
		{"123.456", "0", "123.456"},
		{"1.999", "1", "1"},
	}
	for _, c := range cases {
		a := MustNew(c.amount)
		s := MustNew(c.step)
		got := a.RoundDownStep(s)
		want := MustNew(c.want)
		if !got.Equal(want) {
			t.Errorf("RoundDownStep(%s, %s) = %s, want %s", c.amount, c.step, got, want)
		}
	}
}

func TestPnLLong(t *testing.T) {
	entry := MustNew("100")
	exit := MustNew("103")
	qty := MustNew("2")
	pnl := exit.Sub(entry).Mul(qty)
	if !pnl.Equal(MustNew("6")) {
		t.Errorf("long pnl = %s, want 6", pnl)
	}
}

func TestPnLShort(t *testing.T) {
	entry := MustNew("100")
	exit := MustNew("103")
	qty := MustNew("2")
	pnl := entry.Sub(exit).Mul(qty)
	if !pnl.Equal(MustNew("-6")) {
		t.Errorf("short pnl = %s, want -6", pnl)
	}
}

func TestPercent(t *testing.T) {
	got := MustNew("1000").Percent(1.5)
	if !got.Equal(MustNew("15")) {
		t.Errorf("Percent = %s, want 15", got)
	}
}
