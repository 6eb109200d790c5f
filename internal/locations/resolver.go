// Package locations turns raw location text into catalog location IDs.
package locations

import (
	"context"
	"strings"
	"unicode"

	"jobvyne-crawler/internal/domain"
	"jobvyne-crawler/internal/logger"
	"jobvyne-crawler/internal/scrape/util"
)

// RemoteName is the canonical name every remote variant resolves to.
const RemoteName = "Remote"

// maxLen rejects whole paragraphs scraped into a location field.
const maxLen = 120

type Table interface {
	FindLocation(ctx context.Context, key string) (domain.LocationID, bool, error)
	UpsertLocation(ctx context.Context, name string, remote bool) (domain.LocationID, error)
}

// Resolver looks normalized text up in the location table. With AutoCreate
// set, any plausible place name missing from the table is added.
type Resolver struct {
	table      Table
	autoCreate bool
	log        logger.Logger
}

func NewResolver(table Table, autoCreate bool, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewNop()
	}
	return &Resolver{table: table, autoCreate: autoCreate, log: logger.Component(log, "locations")}
}

func (r *Resolver) Resolve(ctx context.Context, raw string) (domain.LocationID, bool, error) {
	name, remote, ok := Canonical(raw)
	if !ok {
		return 0, false, nil
	}
	id, found, err := r.table.FindLocation(ctx, name)
	if err != nil || found || !r.autoCreate {
		return id, found, err
	}
	id, err = r.table.UpsertLocation(ctx, name, remote)
	if err != nil {
		return 0, false, err
	}
	r.log.Debug("location added", logger.String("name", name))
	return id, true, nil
}

// Canonical normalizes raw location text. ok is false for text that cannot
// name a place ("See description", "Multiple Locations", a paragraph).
func Canonical(raw string) (name string, remote bool, ok bool) {
	name = util.NormalizeLocation(raw)
	if name == "" || len(name) > maxLen {
		return "", false, false
	}
	if util.IsRemote(name) {
		// "Remote - US" style qualifiers are kept as their own place
		rest := strings.TrimSpace(strings.Trim(strings.TrimSpace(stripRemote(name)), "-–,()"))
		if rest == "" {
			return RemoteName, true, true
		}
		return RemoteName + " - " + rest, true, true
	}
	l := strings.ToLower(name)
	for _, junk := range []string{"multiple locations", "various locations", "see description", "tbd", "n/a"} {
		if l == junk {
			return "", false, false
		}
	}
	if !strings.ContainsFunc(name, unicode.IsLetter) {
		return "", false, false
	}
	return name, false, true
}

func stripRemote(s string) string {
	l := strings.ToLower(s)
	for _, w := range []string{"work from home", "remote", "anywhere"} {
		if i := strings.Index(l, w); i >= 0 {
			return s[:i] + s[i+len(w):]
		}
	}
	return s
}
