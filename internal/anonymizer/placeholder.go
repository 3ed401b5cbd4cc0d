package anonymizer

import (
	"crypto/md5" // #nosec G501 -- MD5 used for deterministic tokens, not cryptographic security
	"encoding/hex"
	"strings"
)

// Label classifies the kind of value a token stands for.
type Label string

// Token labels, in the order their matchers run.
const (
	LabelKeyword Label = "MOTCLE"
	LabelAddress Label = "ADRESSE"
	LabelPhone   Label = "TEL"
	LabelDate    Label = "DATE"
	LabelNumber  Label = "NUMERO"
	LabelCompany Label = "ENTR"
)

// Labels lists every label the anonymizer can emit.
var Labels = []Label{LabelKeyword, LabelAddress, LabelPhone, LabelDate, LabelNumber, LabelCompany}

// hashLen is the number of hex characters of the digest kept in a token.
const hashLen = 6

// MakePlaceholder returns the token for value under label, e.g. "[TEL_3f9a01]".
// The value is lower-cased before hashing, so case variants share a token.
func MakePlaceholder(label Label, value string) string {
	sum := md5.Sum([]byte(strings.ToLower(value))) // #nosec G401 -- deterministic token, not crypto
	return "[" + string(label) + "_" + hex.EncodeToString(sum[:])[:hashLen] + "]"
}
