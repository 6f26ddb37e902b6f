package workflow

import (
	"strconv"
	"strings"

	"filings-rag-be/pkg/memory"
)

var temporalWords = map[string]struct{}{
	"today":   {},
	"current": {},
	"latest":  {},
	"recent":  {},
	"news":    {},
	"now":     {},
}

var temporalPhrases = []string{"this year"}

var stockPricePhrases = []string{
	"stock price",
	"share price",
	"stock quote",
	"trading at",
	"market cap",
	"price of the stock",
}

var immediacyWords = map[string]struct{}{
	"now":   {},
	"today": {},
}

// temporalSignal is the freshness analysis of a question.
type temporalSignal struct {
	strong    bool
	immediate bool
}

// analyzeTemporal matches whole words only, so "nowhere" or "currently" do
// not count. Year tokens count when they are the current year or later.
func analyzeTemporal(question string, currentYear int) temporalSignal {
	words := memory.Tokenize(question)
	joined := " " + strings.Join(words, " ") + " "

	var sig temporalSignal
	for _, w := range words {
		if _, ok := temporalWords[w]; ok {
			sig.strong = true
		}
		if _, ok := immediacyWords[w]; ok {
			sig.immediate = true
		}
		if isYearToken(w, currentYear) {
			sig.strong = true
		}
	}
	for _, p := range temporalPhrases {
		if strings.Contains(joined, " "+p+" ") {
			sig.strong = true
		}
	}
	for _, p := range stockPricePhrases {
		if strings.Contains(joined, " "+p+" ") {
			sig.strong = true
			sig.immediate = true
		}
	}
	return sig
}

func isYearToken(w string, currentYear int) bool {
	if len(w) != 4 {
		return false
	}
	y, err := strconv.Atoi(w)
	if err != nil {
		return false
	}
	return y >= currentYear && y < currentYear+5
}
