package accesslist

import (
	"context"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"go4.org/netipx"

	"boxoffice/internal/ratelimit/models"
	dErrors "boxoffice/pkg/domain-errors"
	"boxoffice/pkg/requestcontext"
)

// rule is a parsed entry: either an exact identity or an address range.
type rule struct {
	entry  *models.AccessListEntry
	exact  models.ClientIdentity
	prefix netip.Prefix
}

func (r rule) key() string {
	if r.prefix.IsValid() {
		return "range:" + r.prefix.String()
	}
	return "exact:" + string(r.exact)
}

// InMemoryAccessList holds whitelist and blacklist rules for one process.
// Exact identities are map lookups; address ranges are compiled into one
// netipx.IPSet per list, rebuilt when rules change or a range rule expires.
type InMemoryAccessList struct {
	mu         sync.RWMutex
	rules      map[models.ListKind]map[string]rule
	ranges     map[models.ListKind]*netipx.IPSet
	nextExpiry time.Time // earliest range expiry; zero when none
}

// NewInMemoryAccessList creates a list seeded from configuration patterns.
func NewInMemoryAccessList(whitelist, blacklist []string) (*InMemoryAccessList, error) {
	l := &InMemoryAccessList{
		rules: map[models.ListKind]map[string]rule{
			models.ListWhitelist: {},
			models.ListBlacklist: {},
		},
		ranges: map[models.ListKind]*netipx.IPSet{},
	}
	now := time.Now()
	for kind, patterns := range map[models.ListKind][]string{
		models.ListWhitelist: whitelist,
		models.ListBlacklist: blacklist,
	} {
		for _, p := range patterns {
			entry, err := models.NewAccessListEntry(kind, p, "configured", nil, now)
			if err != nil {
				return nil, err
			}
			if err := l.add(entry); err != nil {
				return nil, err
			}
		}
	}
	l.rebuild(now)
	return l, nil
}

// IsWhitelisted reports whether client bypasses admission control.
func (l *InMemoryAccessList) IsWhitelisted(ctx context.Context, client models.ClientIdentity) (bool, error) {
	return l.contains(ctx, models.ListWhitelist, client), nil
}

// IsBlacklisted reports whether client is unconditionally denied.
func (l *InMemoryAccessList) IsBlacklisted(ctx context.Context, client models.ClientIdentity) (bool, error) {
	return l.contains(ctx, models.ListBlacklist, client), nil
}

func (l *InMemoryAccessList) contains(ctx context.Context, kind models.ListKind, client models.ClientIdentity) bool {
	now := requestcontext.Now(ctx)
	l.refresh(now)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if r, ok := l.rules[kind]["exact:"+string(client)]; ok && !r.entry.IsExpiredAt(now) {
		return true
	}
	if client.Kind() != models.StrategyIP {
		return false
	}
	addr, err := netip.ParseAddr(client.Value())
	if err != nil {
		return false
	}
	set := l.ranges[kind]
	return set != nil && set.Contains(addr.Unmap())
}

// refresh recompiles range sets once the earliest range rule has expired.
func (l *InMemoryAccessList) refresh(now time.Time) {
	l.mu.RLock()
	stale := !l.nextExpiry.IsZero() && !now.Before(l.nextExpiry)
	l.mu.RUnlock()
	if !stale {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.nextExpiry.IsZero() && !now.Before(l.nextExpiry) {
		l.rebuild(now)
	}
}

// Add inserts entry, replacing any rule with the same pattern in the same list.
func (l *InMemoryAccessList) Add(ctx context.Context, entry *models.AccessListEntry) error {
	if entry == nil {
		return dErrors.New(dErrors.CodeBadRequest, "entry is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.add(entry); err != nil {
		return err
	}
	l.rebuild(requestcontext.Now(ctx))
	return nil
}

// Remove deletes the rule with pattern from the kind list.
func (l *InMemoryAccessList) Remove(ctx context.Context, kind models.ListKind, pattern string) error {
	r, err := parseRule(&models.AccessListEntry{Kind: kind, Pattern: pattern})
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rules, ok := l.rules[kind]
	if !ok {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid access list kind")
	}
	if _, ok := rules[r.key()]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "access list entry not found")
	}
	delete(rules, r.key())
	l.rebuild(requestcontext.Now(ctx))
	return nil
}

// List returns all unexpired entries ordered by list, then pattern.
func (l *InMemoryAccessList) List(ctx context.Context) ([]*models.AccessListEntry, error) {
	now := requestcontext.Now(ctx)
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*models.AccessListEntry, 0)
	for _, rules := range l.rules {
		for _, r := range rules {
			if !r.entry.IsExpiredAt(now) {
				out = append(out, r.entry)
			}
		}
	}
	slices.SortFunc(out, func(a, b *models.AccessListEntry) int {
		if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
			return c
		}
		return strings.Compare(a.Pattern, b.Pattern)
	})
	return out, nil
}

// add must be called with mu held (or before the list is shared).
func (l *InMemoryAccessList) add(entry *models.AccessListEntry) error {
	r, err := parseRule(entry)
	if err != nil {
		return err
	}
	rules, ok := l.rules[entry.Kind]
	if !ok {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid access list kind")
	}
	rules[r.key()] = r
	return nil
}

// rebuild must be called with mu held. It drops expired rules and compiles
// the remaining ranges.
func (l *InMemoryAccessList) rebuild(now time.Time) {
	l.nextExpiry = time.Time{}
	for kind, rules := range l.rules {
		var b netipx.IPSetBuilder
		for k, r := range rules {
			if r.entry.IsExpiredAt(now) {
				delete(rules, k)
				continue
			}
			if !r.prefix.IsValid() {
				continue
			}
			b.AddPrefix(r.prefix)
			if exp := r.entry.ExpiresAt; exp != nil && (l.nextExpiry.IsZero() || exp.Before(l.nextExpiry)) {
				l.nextExpiry = *exp
			}
		}
		set, err := b.IPSet()
		if err != nil {
			set = nil
		}
		l.ranges[kind] = set
	}
}

// parseRule accepts "ip:<addr>", "ip:<cidr>", "device:<token>" or a bare
// address or CIDR, which is treated as ip.
func parseRule(entry *models.AccessListEntry) (rule, error) {
	pattern := strings.TrimSpace(entry.Pattern)
	kind, value, hasKind := strings.Cut(pattern, ":")
	if !hasKind || (kind != string(models.StrategyIP) && kind != string(models.StrategyDevice)) {
		kind, value = string(models.StrategyIP), pattern
	}

	if kind == string(models.StrategyDevice) {
		if value == "" {
			return rule{}, dErrors.New(dErrors.CodeInvalidInput, "device pattern requires a token")
		}
		return rule{entry: entry, exact: models.NewDeviceIdentity(value)}, nil
	}

	if strings.Contains(value, "/") {
		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			return rule{}, dErrors.New(dErrors.CodeInvalidInput, "invalid address range: "+value)
		}
		if prefix.Addr().Is4In6() && prefix.Bits() >= 96 {
			prefix = netip.PrefixFrom(prefix.Addr().Unmap(), prefix.Bits()-96)
		}
		return rule{entry: entry, prefix: prefix.Masked()}, nil
	}

	if models.NewIPIdentity(value) == models.UnknownIdentity {
		return rule{entry: entry, exact: models.UnknownIdentity}, nil
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return rule{}, dErrors.New(dErrors.CodeInvalidInput, "invalid address: "+value)
	}
	return rule{entry: entry, exact: models.NewIPIdentity(addr.Unmap().String())}, nil
}
