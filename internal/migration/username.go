package migration

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/tphakala/certmigrate/internal/datastore/repository"
)

var usernameInvalid = regexp.MustCompile(`[^a-z0-9_]`)

// usernameBase derives a username from the local part of an email
func usernameBase(email string) string {
	local, _, _ := strings.Cut(strings.ToLower(email), "@")
	base := usernameInvalid.ReplaceAllString(local, "")
	if base == "" {
		return "user"
	}
	return base
}

// uniqueUsername appends 1, 2, ... to the base until the name is free. It
// must run in the transaction that inserts the user.
func uniqueUsername(ctx context.Context, tx *repository.Repository, email string) (string, error) {
	base := usernameBase(email)
	candidate := base
	for i := 1; ; i++ {
		taken, err := tx.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
}
