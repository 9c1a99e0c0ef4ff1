package pagination

import "testing"

func TestLimitClamps(t *testing.T) {
	cases := []struct {
		name string
		size int
		want int
	}{
		{"zero falls back to default", 0, defaultPageSize},
		{"negative falls back to default", -3, defaultPageSize},
		{"in range passes through", 40, 40},
		{"above cap is clamped", 5000, maxPageSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := (Pagination{PageSize: tc.size}).Limit(); got != tc.want {
				t.Fatalf("Limit() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	first := Pagination{PageSize: 25}
	if first.Offset() != 0 {
		t.Fatalf("empty token offset = %d, want 0", first.Offset())
	}

	token := first.NextToken(25)
	if token == "" {
		t.Fatal("full page produced no next token")
	}

	second := Pagination{PageToken: token, PageSize: 25}
	if second.Offset() != 25 {
		t.Fatalf("second page offset = %d, want 25", second.Offset())
	}
}

func TestNextTokenStopsOnShortPage(t *testing.T) {
	p := Pagination{PageSize: 25}
	if token := p.NextToken(10); token != "" {
		t.Fatalf("short page produced token %q", token)
	}
}

func TestOffsetIgnoresGarbageTokens(t *testing.T) {
	for _, token := range []string{"not-base64!!", "bm90LWEtbnVtYmVy", "LTU"} {
		p := Pagination{PageToken: token}
		if got := p.Offset(); got != 0 {
			t.Fatalf("token %q decoded to offset %d, want 0", token, got)
		}
	}
}
