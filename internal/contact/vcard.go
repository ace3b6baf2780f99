// Package contact wraps github.com/emersion/go-vcard for CardDAV resources:
// normalize line endings, validate required fields, autogenerate UID/FN
// when missing.
package contact

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	govcard "github.com/emersion/go-vcard"
	"github.com/google/uuid"

	"github.com/hazeldav/hazeldav/internal/daverror"
)

// Card is a single parsed vCard.
type Card = govcard.Card

// ParseAll decodes every vCard in data (a file may legally contain more than
// one, though CardDAV resources always store exactly one).
func ParseAll(data []byte) ([]Card, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	content = strings.ReplaceAll(content, "\n", "\r\n")
	dec := govcard.NewDecoder(strings.NewReader(content))
	var out []Card
	for {
		c, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("contact: decode failed: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Serialize re-encodes one or more cards.
func Serialize(cards []Card) ([]byte, error) {
	var buf bytes.Buffer
	enc := govcard.NewEncoder(&buf)
	for _, c := range cards {
		if err := enc.Encode(c); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Validator implements collection.Validator for addressbook resources.
type Validator struct{}

// Validate enforces RFC 6350's minimal shape (VERSION + FN) and returns the
// card's UID, generating one deterministically-absent-source only when the
// caller explicitly asks for autogeneration via EnsureUID — Validate itself
// never mutates the resource and treats a missing UID as a rejection, not
// an autofix.
func (Validator) Validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("contact: empty vCard data")
	}
	content := string(data)
	if !strings.Contains(content, "BEGIN:VCARD") || !strings.Contains(content, "END:VCARD") {
		if strings.Contains(content, "BEGIN:VCALENDAR") {
			return "", daverror.UnsupportedMediaType("addressbook collection received calendar data, not vCard")
		}
		return "", errors.New("contact: missing BEGIN:VCARD/END:VCARD")
	}
	cards, err := ParseAll(data)
	if err != nil {
		return "", err
	}
	if len(cards) != 1 {
		return "", fmt.Errorf("contact: exactly one vCard per resource, got %d", len(cards))
	}
	c := cards[0]
	if c.Value(govcard.FieldVersion) == "" {
		return "", errors.New("contact: missing VERSION")
	}
	if c.Value(govcard.FieldFormattedName) == "" {
		return "", errors.New("contact: missing FN")
	}
	uid := c.Value(govcard.FieldUID)
	if uid == "" {
		return "", errors.New("contact: missing UID")
	}
	return uid, nil
}

// EnsureUID fills in UID (and FN, if derivable from N) on cards missing
// them, for import from legacy clients that omit a UID. Returns the
// re-encoded bytes.
func EnsureUID(data []byte) ([]byte, error) {
	cards, err := ParseAll(data)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		c := cards[i]
		if c.Value(govcard.FieldFormattedName) == "" {
			if name := c.Name(); name != nil {
				fn := strings.TrimSpace(strings.Join([]string{name.GivenName, name.AdditionalName, name.FamilyName}, " "))
				if fn != "" {
					c.SetValue(govcard.FieldFormattedName, fn)
				}
			}
		}
		if c.Value(govcard.FieldUID) == "" {
			c.SetValue(govcard.FieldUID, uuid.NewString())
		}
		cards[i] = c
	}
	return Serialize(cards)
}
