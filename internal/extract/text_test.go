package extract

import (
	"reflect"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "corporate abbreviations",
			text: "TechCorp Inc. agrees to acquire DataSoft LLC for $2.5 billion. The deal is expected to close in Q3.",
			want: []string{
				"TechCorp Inc. agrees to acquire DataSoft LLC for $2.5 billion.",
				"The deal is expected to close in Q3.",
			},
		},
		{
			name: "decimals and initials",
			text: "J.P. Morgan advised on the $1.5 billion sale. Shares rose 3.2% on Monday!",
			want: []string{
				"J.P. Morgan advised on the $1.5 billion sale.",
				"Shares rose 3.2% on Monday!",
			},
		},
		{
			name: "us and dates",
			text: "The U.S. regulator approved it on Jan. 5, 2024. Is it done? Yes",
			want: []string{
				"The U.S. regulator approved it on Jan. 5, 2024.",
				"Is it done?",
				"Yes",
			},
		},
		{
			name: "semicolon joined clauses",
			text: "TechCorp Inc. acquired DataSoft LLC for $2.5 billion; TechCorp Inc. also acquired Foo Corp for $1 billion.",
			want: []string{
				"TechCorp Inc. acquired DataSoft LLC for $2.5 billion;",
				"TechCorp Inc. also acquired Foo Corp for $1 billion.",
			},
		},
		{
			name: "semicolon inside a token",
			text: "See a;b for details.",
			want: []string{"See a;b for details."},
		},
		{
			name: "newlines",
			text: "First line\nSecond line",
			want: []string{"First line", "Second line"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitSentences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitParagraphs(t *testing.T) {
	got := splitParagraphs("First para\nstill first.\n\n  Second   para.  \n\n")
	want := []string{"First para still first.", "Second para."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitParagraphs() = %q, want %q", got, want)
	}

	got = splitParagraphs("one\ntwo")
	if !reflect.DeepEqual(got, []string{"one", "two"}) {
		t.Errorf("single newlines should split, got %q", got)
	}
}

func TestReadingTime(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 200: 1, 201: 2, 1000: 5}
	for words, want := range cases {
		if got := ReadingTime(words); got != want {
			t.Errorf("ReadingTime(%d) = %d, want %d", words, got, want)
		}
	}
}
