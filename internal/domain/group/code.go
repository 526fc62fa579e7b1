package group

import (
	"encoding/base32"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/kleo-app/kleo/internal/domain/shared"
)

// GroupCode is a short human-shareable code derived from a group name.
// Uniqueness is enforced by storage, not here.
type GroupCode string

const (
	codePrefixLen   = 3
	codeSuffixLen   = 5
	codeFallbackTag = "GR"
)

var codeRegex = regexp.MustCompile(`^[A-Z0-9]{1,3}-[A-Z2-7]{5}$`)

// DeriveCode computes the code for a group name. Names that differ only in
// case or whitespace derive the same code.
func DeriveCode(name string) GroupCode {
	normalized := normalizeName(name)

	var prefix strings.Builder
	for _, word := range strings.Fields(normalized) {
		if prefix.Len() == codePrefixLen {
			break
		}
		for _, r := range word {
			if isASCIIAlnum(r) {
				prefix.WriteRune(r)
				break
			}
		}
	}

	tag := strings.ToUpper(prefix.String())
	if tag == "" {
		tag = codeFallbackTag
	}

	sum := blake2b.Sum256([]byte(normalized))
	suffix := base32.StdEncoding.EncodeToString(sum[:5])[:codeSuffixLen]

	return GroupCode(tag + "-" + suffix)
}

// ParseCode normalizes user input and checks the code shape.
func ParseCode(s string) (GroupCode, error) {
	code := GroupCode(strings.ToUpper(strings.TrimSpace(s)))
	if !code.IsValid() {
		return "", shared.NewDomainError("group", "ParseCode", shared.ErrValidation, "invalid group code format")
	}
	return code, nil
}

// IsValid checks the code shape.
func (c GroupCode) IsValid() bool {
	return codeRegex.MatchString(string(c))
}

// String returns the string representation.
func (c GroupCode) String() string {
	return string(c)
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
