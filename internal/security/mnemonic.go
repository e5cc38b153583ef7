package security

import (
	"regexp"
	"strings"

	"github.com/tyler-smith/go-bip39/wordlists"
)

var (
	mentionToken = regexp.MustCompile(`<@[^>]*>`)
	letterRun    = regexp.MustCompile(`[a-z]+`)
)

// mnemonicLengths are the word counts of standard BIP-39 recovery phrases.
var mnemonicLengths = map[int]bool{12: true, 15: true, 18: true, 21: true, 24: true}

// vocabulary is a set over a mnemonic word list.
type vocabulary map[string]struct{}

func newVocabulary(words []string) vocabulary {
	v := make(vocabulary, len(words))
	for _, w := range words {
		v[w] = struct{}{}
	}
	return v
}

var bip39English = newVocabulary(wordlists.English)

// countMnemonicWords counts tokens of text found in vocab, repeats included.
// User mentions are removed first so their ids cannot produce tokens.
func countMnemonicWords(text string, vocab vocabulary) int {
	text = strings.ToLower(mentionToken.ReplaceAllString(text, " "))
	n := 0
	for _, tok := range letterRun.FindAllString(text, -1) {
		if _, ok := vocab[tok]; ok {
			n++
		}
	}
	return n
}

// looksLikeMnemonic reports whether the vocabulary hit count is exactly a
// standard phrase length.
func looksLikeMnemonic(text string, vocab vocabulary) bool {
	return mnemonicLengths[countMnemonicWords(text, vocab)]
}
