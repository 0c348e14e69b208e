package email

import (
	"context"
	"fmt"
)

// ContactResolver looks recipients up in the contacts directory
// without the email package importing it.
type ContactResolver interface {
	// LookupEmail returns the contact name for addr, or found=false.
	LookupEmail(ctx context.Context, addr string) (name string, found bool, err error)
}

// unknownRecipients returns a note for every recipient that has no
// contact record. Sending still proceeds; the notes are passed back to
// the model so it can mention them.
func unknownRecipients(ctx context.Context, cr ContactResolver, addrs []string) []string {
	if cr == nil {
		return nil
	}
	var notes []string
	for _, addr := range addrs {
		_, found, err := cr.LookupEmail(ctx, addr)
		switch {
		case err != nil:
			notes = append(notes, fmt.Sprintf("%s: contact lookup failed: %v", addr, err))
		case !found:
			notes = append(notes, fmt.Sprintf("%s is not in your contacts", addr))
		}
	}
	return notes
}
