package compose

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ppiankov/issuetweet/internal/source"
)

func testIssue(title string) source.Issue {
	return source.Issue{
		Repository: "owner/repo",
		Number:     42,
		Title:      title,
		URL:        "https://github.com/owner/repo/issues/42",
	}
}

// footer for owner/repo #42 with the default link length: 14 + 2 + 23.
const testFooter = 39

func TestFormatID(t *testing.T) {
	if got := FormatID("dotnet/runtime", 1234); got != "dotnet/runtime #1234" {
		t.Errorf("id = %q", got)
	}
}

func TestNew_Defaults(t *testing.T) {
	f := New(0, -1)
	if f.MaxLength != DefaultMaxLength || f.LinkLength != DefaultLinkLength {
		t.Errorf("formatter = %+v, want defaults", f)
	}
}

func TestFormat_ShortTitleUnchanged(t *testing.T) {
	f := New(280, 23)
	c, b := f.Explain(testIssue("  Fix crash on startup  "))

	if c.ID != "owner/repo #42" {
		t.Errorf("id = %q", c.ID)
	}
	if c.Title != "Fix crash on startup" {
		t.Errorf("title = %q, want trimmed title", c.Title)
	}
	if c.FullTitle != "Fix crash on startup" {
		t.Errorf("full title = %q", c.FullTitle)
	}
	if b.Footer != testFooter {
		t.Errorf("footer = %d, want %d", b.Footer, testFooter)
	}
	if b.Remaining != 280-testFooter || b.Final != 280-testFooter {
		t.Errorf("remaining = %d final = %d, want %d", b.Remaining, b.Final, 280-testFooter)
	}
	if b.Truncated {
		t.Error("truncated = true, want false")
	}
	if len(b.Compensations) != 0 {
		t.Errorf("compensations = %v, want none", b.Compensations)
	}
}

func TestFormat_CollapsesWhitespace(t *testing.T) {
	c := New(280, 23).Format(testIssue("Crash in parser\r\nwhen  input\tis empty\n"))
	if c.Title != "Crash in parser when input is empty" {
		t.Errorf("title = %q, want a single line", c.Title)
	}
	if c.FullTitle != c.Title {
		t.Errorf("full title = %q", c.FullTitle)
	}
}

func TestRender(t *testing.T) {
	c := Candidate{ID: "owner/repo #42", Title: "Some title", URL: "https://x/42"}
	want := "Some title\nowner/repo #42 https://x/42"
	if got := Render(c); got != want {
		t.Errorf("render = %q, want %q", got, want)
	}
}

func TestFormat_TruncatesWithEllipsis(t *testing.T) {
	f := New(testFooter+21, 23)
	c, b := f.Explain(testIssue(strings.Repeat("a", 30)))

	want := strings.Repeat("a", 20) + Ellipsis
	if c.Title != want {
		t.Errorf("title = %q, want %q", c.Title, want)
	}
	if utf8.RuneCountInString(c.Title) != 21 {
		t.Errorf("title length = %d, want exactly 21", utf8.RuneCountInString(c.Title))
	}
	if !b.Truncated {
		t.Error("truncated = false, want true")
	}
	if c.FullTitle != strings.Repeat("a", 30) {
		t.Errorf("full title = %q", c.FullTitle)
	}
}

func TestFormat_ExactFitNotTruncated(t *testing.T) {
	f := New(testFooter+10, 23)
	c := f.Format(testIssue("0123456789"))
	if c.Title != "0123456789" {
		t.Errorf("title = %q, want untouched", c.Title)
	}
}

func TestFormat_DomainCompensation(t *testing.T) {
	f := New(280, 23)
	c, b := f.Explain(testIssue("Site example.com returns 500"))

	if len(b.Compensations) != 1 {
		t.Fatalf("compensations = %v, want 1", b.Compensations)
	}
	comp := b.Compensations[0]
	if comp.Match != "example.com" {
		t.Errorf("match = %q", comp.Match)
	}
	if comp.MinPair != 10 {
		t.Errorf("min pair = %d, want 10 (example=7 + com=3)", comp.MinPair)
	}
	if comp.Deduction != 13 {
		t.Errorf("deduction = %d, want 13", comp.Deduction)
	}
	if b.Final != 280-testFooter-13 {
		t.Errorf("final = %d, want %d", b.Final, 280-testFooter-13)
	}
	if c.Title != "Site example.com returns 500" {
		t.Errorf("title = %q, want untouched", c.Title)
	}
}

func TestFormat_DomainCompensationForcesTruncation(t *testing.T) {
	// 31 runes of title with a 35 rune budget; the domain eats 13 of it.
	title := "Broken link to example.com docs"
	f := New(testFooter+35, 23)
	c, b := f.Explain(testIssue(title))

	if b.Final != 22 {
		t.Errorf("final = %d, want 22", b.Final)
	}
	if utf8.RuneCountInString(c.Title) != 22 {
		t.Errorf("title length = %d, want 22", utf8.RuneCountInString(c.Title))
	}
	if !strings.HasSuffix(c.Title, Ellipsis) {
		t.Errorf("title = %q, want ellipsis suffix", c.Title)
	}
	if !strings.HasPrefix(title, strings.TrimSuffix(c.Title, Ellipsis)) {
		t.Errorf("title = %q is not a prefix of the original", c.Title)
	}
}

func TestFormat_TenRemainingWithDomainClampsToOne(t *testing.T) {
	f := New(testFooter+10, 23)
	c, b := f.Explain(testIssue("example.com is down"))

	if b.Remaining != 10 {
		t.Fatalf("remaining = %d, want 10", b.Remaining)
	}
	if len(b.Compensations) == 0 {
		t.Fatal("expected a compensation for the domain")
	}
	if b.Final != 1 {
		t.Errorf("final = %d, want clamp to 1", b.Final)
	}
	if c.Title != Ellipsis {
		t.Errorf("title = %q, want lone ellipsis", c.Title)
	}
	if got := DisplayLength(c, 23); got > f.MaxLength {
		t.Errorf("display length = %d exceeds %d", got, f.MaxLength)
	}
}

func TestFormat_LongDomainNotCompensated(t *testing.T) {
	f := New(280, 23)
	_, b := f.Explain(testIssue("See averyveryverylongsubdomain.anotherverylongdomainname.community"))
	if len(b.Compensations) != 0 {
		t.Errorf("compensations = %v, want none for names wider than a link", b.Compensations)
	}
}

func TestFormat_MultipleDomains(t *testing.T) {
	f := New(280, 23)
	_, b := f.Explain(testIssue("foo.bar.net redirects to System.IO"))

	if len(b.Compensations) != 2 {
		t.Fatalf("compensations = %v, want 2", b.Compensations)
	}
	if b.Compensations[0].MinPair != 6 || b.Compensations[0].Deduction != 17 {
		t.Errorf("foo.bar.net = %+v, want min 6 deduction 17", b.Compensations[0])
	}
	if b.Compensations[1].MinPair != 8 || b.Compensations[1].Deduction != 15 {
		t.Errorf("System.IO = %+v, want min 8 deduction 15", b.Compensations[1])
	}
	if b.Final != 280-testFooter-17-15 {
		t.Errorf("final = %d", b.Final)
	}
}

func TestFormat_EmptyTitle(t *testing.T) {
	f := New(280, 23)
	c, b := f.Explain(testIssue("   "))
	if c.Title != "" {
		t.Errorf("title = %q, want empty", c.Title)
	}
	if b.Truncated {
		t.Error("truncated = true for empty title")
	}
	if got := Render(c); got != "\nowner/repo #42 https://github.com/owner/repo/issues/42" {
		t.Errorf("render = %q", got)
	}
}

func TestFormat_NormalizesToNFC(t *testing.T) {
	f := New(280, 23)
	// "e" + combining acute accent composes into a single rune.
	c := f.Format(testIssue("Cafe\u0301 crash"))
	if c.Title != "Caf\u00e9 crash" {
		t.Errorf("title = %q, want NFC form", c.Title)
	}
}

func TestFormat_CountsRunesNotBytes(t *testing.T) {
	f := New(testFooter+5, 23)
	c := f.Format(testIssue("ошибка сборки"))
	if c.Title != "ошиб"+Ellipsis {
		t.Errorf("title = %q, want 4 runes plus ellipsis", c.Title)
	}
}

func TestFormat_LengthInvariant(t *testing.T) {
	titles := []string{
		"",
		"short",
		strings.Repeat("word ", 80),
		"Crash when loading a.b.c.d.e.f.g.h.i.j assemblies from net.io and x.y",
		strings.Repeat("example.com ", 30),
		strings.Repeat("界", 300),
		"Update dependency Microsoft.Extensions.Logging.Abstractions to 9.0.1",
	}
	repos := []string{"o/r", "dotnet/runtime", "dotnet/aspnetcore-tooling-and-extensions"}

	for _, budget := range []int{140, 280} {
		f := New(budget, 23)
		for _, repo := range repos {
			for n, title := range titles {
				issue := source.Issue{Repository: repo, Number: 100000 + n, Title: title, URL: "https://github.com/x"}
				c := f.Format(issue)
				if got := DisplayLength(c, 23); got > budget {
					t.Errorf("budget %d, %s, title %d: display length %d", budget, repo, n, got)
				}
			}
		}
	}
}

func TestMinAdjacentSum(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"example.com", 10},
		{"foo.bar.net", 6},
		{"a.bb.cccc", 3},
		{"docs.microsoft.com", 12},
	}
	for _, tt := range tests {
		if got := minAdjacentSum(tt.input); got != tt.want {
			t.Errorf("minAdjacentSum(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestEnforceLength(t *testing.T) {
	tests := []struct {
		value  string
		length int
		want   string
	}{
		{"hello", 5, "hello"},
		{"hello", 10, "hello"},
		{"hello world", 5, "hell" + Ellipsis},
		{"hello", 1, Ellipsis},
	}
	for _, tt := range tests {
		got := enforceLength(tt.value, tt.length)
		if got != tt.want {
			t.Errorf("enforceLength(%q, %d) = %q, want %q", tt.value, tt.length, got, tt.want)
		}
	}
}

func ExampleRender() {
	f := New(280, 23)
	c := f.Format(source.Issue{
		Repository: "dotnet/runtime",
		Number:     1,
		Title:      "Add span overloads",
		URL:        "https://github.com/dotnet/runtime/issues/1",
	})
	fmt.Println(Render(c))
	// Output:
	// Add span overloads
	// dotnet/runtime #1 https://github.com/dotnet/runtime/issues/1
}
