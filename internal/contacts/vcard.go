package contacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-vcard"
)

// fieldRelationship carries Contact.Relationship in exported cards.
const fieldRelationship = "X-RELATIONSHIP"

// ImportVCF adds every card in r that has a name. Cards whose name is
// already present are skipped.
func (s *Store) ImportVCF(ctx context.Context, r io.Reader) (added, skipped int, err error) {
	dec := vcard.NewDecoder(r)
	for {
		card, err := dec.Decode()
		if err == io.EOF {
			return added, skipped, nil
		}
		if err != nil {
			return added, skipped, fmt.Errorf("decode vcard: %w", err)
		}

		c := fromCard(card)
		if c.Name == "" {
			skipped++
			continue
		}
		if err := s.Add(ctx, c); err != nil {
			if errors.Is(err, ErrExists) {
				skipped++
				continue
			}
			return added, skipped, err
		}
		added++
	}
}

// ExportVCF writes every active contact as a vCard 4.0 card.
func (s *Store) ExportVCF(ctx context.Context, w io.Writer) error {
	list, err := s.List(ctx)
	if err != nil {
		return err
	}
	enc := vcard.NewEncoder(w)
	for _, c := range list {
		if err := enc.Encode(toCard(c)); err != nil {
			return fmt.Errorf("encode %s: %w", c.Name, err)
		}
	}
	return nil
}

func fromCard(card vcard.Card) *Contact {
	c := &Contact{
		Name:         strings.TrimSpace(card.PreferredValue(vcard.FieldFormattedName)),
		Email:        card.PreferredValue(vcard.FieldEmail),
		Phone:        card.PreferredValue(vcard.FieldTelephone),
		Relationship: card.Value(fieldRelationship),
	}
	if c.Name == "" {
		if n := card.Name(); n != nil {
			c.Name = strings.TrimSpace(strings.Join([]string{n.GivenName, n.FamilyName}, " "))
		}
	}
	if c.Relationship == "" {
		c.Relationship = strings.Join(card.Categories(), ", ")
	}
	return c
}

func toCard(c *Contact) vcard.Card {
	card := make(vcard.Card)
	card.SetValue(vcard.FieldFormattedName, c.Name)
	if c.Email != "" {
		card.SetValue(vcard.FieldEmail, c.Email)
	}
	if c.Phone != "" {
		card.SetValue(vcard.FieldTelephone, c.Phone)
	}
	if c.Relationship != "" {
		card.SetValue(fieldRelationship, c.Relationship)
	}
	vcard.ToV4(card)
	return card
}
