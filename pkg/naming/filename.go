package naming

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// garbledChars enumerates code points that show up when UTF-8 bytes are
// misread as Latin-1 (a/e with diacritics, section and cent signs, the
// A-grave..a-circumflex block). A repaired candidate containing any of
// them is rejected.
const garbledChars = "ãè§é¢æ°ºåäç" +
	"ïìíîñòóôõö" +
	"ùúûüýÿ" +
	"ÀÁÂÃÄÅÆÇ" +
	"ÈÉÊËÌÍÎÏ" +
	"ÐÑÒÓÔÕÖØ" +
	"ÙÚÛÜÝÞß" +
	"àáâ"

var urlEncodedPattern = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)

// DecodeFilename extracts the base name from a URL or path and repairs its
// encoding. The result is deterministic and idempotent: feeding the output
// back in returns it unchanged.
func DecodeFilename(urlOrPath string) string {
	filename := path.Base(urlOrPath)

	// Percent-encoded names are decoded once; the result is accepted only
	// when it actually changed and is free of mojibake.
	if strings.Contains(filename, "%") && urlEncodedPattern.MatchString(filename) {
		if decoded, err := url.PathUnescape(filename); err == nil {
			if decoded != filename && utf8.ValidString(decoded) && !hasGarbledChars(decoded) {
				return decoded
			}
		}
	}

	if utf8.ValidString(filename) && !hasGarbledChars(filename) {
		return filename
	}

	return FixEncoding(filename)
}

// FixEncoding repairs a single garbled name. Candidates are tried in order;
// the first one free of mojibake wins. Unrepairable input is returned
// unchanged.
func FixEncoding(name string) string {
	if name == "" || !hasGarbledChars(name) {
		return name
	}
	if fixed, ok := tryEncodingFixes(name); ok {
		return fixed
	}
	return name
}

// FixPath repairs a whole path the same way FixEncoding repairs a name.
func FixPath(p string) string {
	if p == "" || !hasGarbledChars(p) {
		return p
	}
	if fixed, ok := tryEncodingFixes(p); ok {
		return fixed
	}
	return p
}

// EnsureUTF8 returns text unchanged when it is already valid UTF-8,
// otherwise attempts the repair chain.
func EnsureUTF8(text string) string {
	if text == "" || utf8.ValidString(text) {
		return text
	}
	if fixed, ok := tryEncodingFixes(text); ok {
		return fixed
	}
	return text
}

func hasGarbledChars(text string) bool {
	return strings.ContainsAny(text, garbledChars)
}

func tryEncodingFixes(text string) (string, bool) {
	// Latin-1 re-encode: each code point below U+0100 is one byte. This
	// covers the common case of UTF-8 bytes that were misdecoded as
	// Latin-1 / ISO-8859-1.
	if fixed, ok := latin1ToUTF8(text); ok && !hasGarbledChars(fixed) {
		return fixed, true
	}

	// GBK re-encode, for names that only make sense as GBK byte sequences.
	if fixed, ok := gbkToUTF8(text); ok && !hasGarbledChars(fixed) {
		return fixed, true
	}

	return "", false
}

func latin1ToUTF8(text string) (string, bool) {
	buf := make([]byte, 0, len(text))
	for _, r := range text {
		if r > 0xFF {
			return "", false
		}
		buf = append(buf, byte(r))
	}
	if !utf8.Valid(buf) {
		return "", false
	}
	return string(buf), true
}

func gbkToUTF8(text string) (string, bool) {
	ascii := true
	for _, r := range text {
		if r > 0x7F {
			ascii = false
			break
		}
	}
	if ascii {
		return "", false
	}

	encoded, _, err := transform.String(simplifiedchinese.GBK.NewEncoder(), text)
	if err != nil {
		return "", false
	}
	if !utf8.ValidString(encoded) {
		return "", false
	}
	return encoded, true
}
