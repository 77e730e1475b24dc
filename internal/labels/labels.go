// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package labels converts classifier output labels into canonical lookup
// keys and human-readable display strings.
//
// Labels arrive in three shapes:
//
//	Apple___Black_rot       canonical, returned unchanged
//	Black rot (Apple)       parenthesized, crop in the trailing group
//	anything else           freeform, returned unchanged
package labels

import (
	"strings"
	"unicode"
)

// Separator joins the crop and disease tokens of a canonical label.
const Separator = "___"

// Canonicalize returns the <Crop>___<Disease> key for a raw label. It
// never fails: labels that cannot be decomposed are returned trimmed but
// otherwise unchanged, and Canonicalize(Canonicalize(x)) == Canonicalize(x).
func Canonicalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.Contains(s, Separator) {
		return s
	}

	disease, crop, ok := SplitTrailingGroup(s)
	if !ok {
		return s
	}

	cropTok := Token(crop)
	diseaseTok := Token(disease)
	if cropTok == "" || diseaseTok == "" {
		return s
	}
	return cropTok + Separator + diseaseTok
}

// SplitTrailingGroup splits a label ending in a depth-balanced
// parenthesized group into the text before the group and the text inside
// it. Only the outermost group closing at the very end qualifies:
//
//	"Black rot (Apple)"            -> "Black rot", "Apple"
//	"Common rust (Corn (maize))"   -> "Common rust", "Corn (maize)"
//	"Esca (Black Measles) (Grape)" -> "Esca (Black Measles)", "Grape"
//
// ok is false when there is no such group or the group is empty.
func SplitTrailingGroup(label string) (left, inside string, ok bool) {
	s := strings.TrimSpace(label)
	if !strings.HasSuffix(s, ")") {
		return "", "", false
	}

	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				left = strings.TrimSpace(s[:i])
				inside = strings.TrimSpace(s[i+1 : len(s)-1])
				if inside == "" {
					return "", "", false
				}
				return left, inside, true
			}
		}
	}
	return "", "", false
}

// Token turns free text into an underscore-joined alphanumeric token:
// every run of non-alphanumeric characters becomes a single underscore and
// leading or trailing underscores are removed.
func Token(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// Display renders a raw label as "Crop : Disease".
//
//	"Apple___Black_rot"          -> "Apple : Black rot"
//	"Tomato___Tomato_mosaic_virus" -> "Tomato : mosaic virus"
//	"Black rot (Apple)"          -> "Apple : Black rot"
//
// Freeform labels are returned trimmed.
func Display(raw string) string {
	s := strings.TrimSpace(raw)

	if crop, disease, ok := strings.Cut(s, Separator); ok {
		disease = strings.TrimSpace(strings.ReplaceAll(disease, "_", " "))
		crop = strings.TrimSpace(strings.ReplaceAll(crop, "_", " "))
		disease = trimCropPrefix(disease, crop)
		if crop == "" {
			return disease
		}
		return crop + " : " + disease
	}

	if disease, crop, ok := SplitTrailingGroup(s); ok {
		disease = strings.TrimSpace(strings.ReplaceAll(disease, "_", " "))
		if disease == "" {
			return crop
		}
		return crop + " : " + disease
	}

	return s
}

// trimCropPrefix drops leading words of disease that repeat the crop
// name, as in "Tomato___Tomato_mosaic_virus". A disease that is nothing
// but the crop name is kept.
func trimCropPrefix(disease, crop string) string {
	cropNorm := Normalize(crop)
	if cropNorm == "" {
		return disease
	}
	words := strings.Fields(disease)
	for i := 1; i < len(words); i++ {
		head := Normalize(strings.Join(words[:i], " "))
		if head == cropNorm {
			return strings.Join(words[i:], " ")
		}
		if len(head) > len(cropNorm) {
			break
		}
	}
	return disease
}

// Parts returns the crop and disease named by a canonical or
// parenthesized label. ok is false for freeform labels.
func Parts(raw string) (crop, disease string, ok bool) {
	s := strings.TrimSpace(raw)
	if c, d, found := strings.Cut(s, Separator); found {
		c = strings.TrimSpace(strings.ReplaceAll(c, "_", " "))
		d = strings.TrimSpace(strings.ReplaceAll(d, "_", " "))
		return c, d, c != "" && d != ""
	}
	if d, c, found := SplitTrailingGroup(s); found && d != "" {
		return c, d, true
	}
	return "", "", false
}

// Normalize lowercases s and collapses every run of characters that are
// not letters, marks, or digits into one space. It is deliberately looser
// than Token so display strings, catalog names, and model labels
// cross-match across punctuation and script differences.
func Normalize(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// IsHealthy reports whether a label names a healthy plant class.
func IsHealthy(raw string) bool {
	_, disease, ok := Parts(raw)
	if !ok {
		disease = raw
	}
	return strings.HasPrefix(Normalize(disease), "healthy")
}
