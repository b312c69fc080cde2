package extract

import (
	"reflect"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "Hello there. How are you? Fine!", []string{"Hello there.", "How are you?", "Fine!"}},
		{"abbreviation", "Dr. Smith called. He said hi.", []string{"Dr. Smith called.", "He said hi."}},
		{"initial", "J. Smith arrived.", []string{"J. Smith arrived."}},
		{"decimal", "Version 2.5 shipped.", []string{"Version 2.5 shipped."}},
		{"terminator run", "Really?! Yes.", []string{"Really?!", "Yes."}},
		{"newlines", "first line\nsecond line", []string{"first line", "second line"}},
		{"no terminator", "just words", []string{"just words"}},
		{"japanese", "今日は晴れです。明日は雨です。明後日は曇りです。",
			[]string{"今日は晴れです。", "明日は雨です。", "明後日は曇りです。"}},
		{"empty", "", nil},
		{"whitespace", "   \n  ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
